package service

import (
	"context"
	"io"

	"github.com/okian/panelscore/internal/export"
)

// Export writes the score report workbook to w.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	if err := s.running(); err != nil {
		return err
	}
	return export.Write(ctx, s.store, w)
}
