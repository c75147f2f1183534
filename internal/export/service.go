package export

import (
	"context"
	"fmt"
	"time"

	"sheettracker/api/internal/sheet"
)

type renderFunc func(ctx context.Context, html string) ([]byte, error)

// Service renders progress reports.
type Service struct {
	now  func() time.Time
	pdf  renderFunc
	docx renderFunc
}

func NewService() *Service {
	return &Service{now: time.Now, pdf: renderPDF, docx: renderDOCX}
}

// Export renders sh in the requested format.
func (s *Service) Export(ctx context.Context, sh sheet.Sheet, format Format) (*Result, error) {
	html, err := RenderReportHTML(NewReportData(sh, s.now()))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	name := sanitizeFilename(sh.Meta.Name)

	switch format {
	case FormatHTML, "":
		return &Result{Data: []byte(html), Filename: name + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatPDF:
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: name + ".pdf", MimeType: "application/pdf"}, nil
	case FormatDOCX:
		data, err := s.docx(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: name + ".docx",
			MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
