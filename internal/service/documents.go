package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"sismed/internal/domain"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"
)

const defaultPDFName = "receita.pdf"

// DocumentService writes rendered prescription documents to disk
type DocumentService struct {
	log zerolog.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(log zerolog.Logger) *DocumentService {
	return &DocumentService{log: log.With().Str("component", "documents").Logger()}
}

// SavePDF writes data to dest and returns the absolute path written.
//
// An empty dest means the user dismissed the save dialog. When dest is an
// existing directory the file is created inside it under filename. The
// .pdf extension is added when missing.
func (s *DocumentService) SavePDF(ctx context.Context, data []byte, filename, dest string) (string, error) {
	const op = "save pdf"
	if dest == "" {
		return "", domain.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return "", domain.E(domain.KindInternal, op, err)
	}

	path := dest
	if st, err := os.Stat(dest); err == nil && st.IsDir() {
		name := filepath.Base(filename)
		if name == "." || name == string(filepath.Separator) || name == "" {
			name = defaultPDFName
		}
		path = filepath.Join(dest, name)
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		path += ".pdf"
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", domain.E(domain.KindIOFailure, op, err)
	}
	if err := atomic.WriteFile(abs, bytes.NewReader(data)); err != nil {
		s.log.Warn().Err(err).Str("path", abs).Msg("pdf write failed")
		return "", domain.E(domain.KindIOFailure, op, err)
	}

	s.log.Info().Str("path", abs).Int("bytes", len(data)).Msg("pdf saved")
	return abs, nil
}

// SuggestedPDFName returns the default file name offered for a patient's
// prescription, e.g. Receita_ANA_SILVA_2024-03-01.pdf
func SuggestedPDFName(patientName, date string) string {
	name := strings.Join(strings.Fields(strings.ToUpper(patientName)), "_")
	if name == "" {
		name = "PACIENTE"
	}
	return "Receita_" + name + "_" + date + ".pdf"
}
