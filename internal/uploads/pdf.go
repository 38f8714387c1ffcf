package uploads

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"etl-backend/internal/shared/telemetry"
)

const maxPreflightText = 64 << 10

// ErrNoTextLayer means the PDF parsed but has no extractable text, which the
// ETL tool cannot process (typically a scanned document).
var ErrNoTextLayer = errors.New("no extractable text found in PDF; is this a scanned or empty document?")

// checkTextLayer rejects PDFs whose text layer is empty. Documents our parser
// cannot read are let through; the ETL tool has its own extractors.
func checkTextLayer(path string) error {
	text, err := readPDFText(path)
	return judgeTextLayer(path, text, err)
}

func judgeTextLayer(path, text string, readErr error) error {
	if readErr != nil {
		telemetry.Warn("uploads.pdf.preflight_skipped", map[string]any{"path": path, "err": readErr})
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return ErrNoTextLayer
	}
	return nil
}

func readPDFText(path string) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(plain, maxPreflightText)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
