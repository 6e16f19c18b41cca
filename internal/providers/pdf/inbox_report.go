package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	inboxdomain "github.com/smallbiznis/directory/internal/inbox/domain"
)

var ErrNilInbox = errors.New("inbox_required")

var priorityLabels = map[inboxdomain.Priority]string{
	inboxdomain.PriorityCritical: "Crítico",
	inboxdomain.PriorityWarning:  "Atención",
	inboxdomain.PriorityInfo:     "Info",
}

var kindLabels = map[inboxdomain.Kind]string{
	inboxdomain.KindApplication: "Solicitud",
	inboxdomain.KindReview:      "Revisión",
	inboxdomain.KindPayment:     "Pago vencido",
	inboxdomain.KindExpiration:  "Por vencer",
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInboxReport(ctx context.Context, inbox *inboxdomain.Inbox) (io.Reader, error) {
	if inbox == nil {
		return nil, ErrNilInbox
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Bandeja de operaciones", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	generated := inbox.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}
	m.AddRow(8,
		text.NewCol(6, "Generado: "+generated.UTC().Format("2006-01-02 15:04 MST"), props.Text{Size: 9}),
		text.NewCol(6, fmt.Sprintf("Pendientes: %d", len(inbox.Items)), props.Text{Size: 9, Align: align.Right}),
	)

	if inbox.Degraded() {
		sources := make([]string, 0, len(inbox.DegradedSources))
		for _, s := range inbox.DegradedSources {
			sources = append(sources, string(s))
		}
		m.AddRow(8,
			text.NewCol(12, "Fuentes no disponibles: "+strings.Join(sources, ", "), props.Text{
				Size:  9,
				Style: fontstyle.Italic,
			}),
		)
	}

	// Table Header
	m.AddRow(10,
		text.NewCol(2, "Prioridad", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Tipo", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Negocio", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Detalle", props.Text{Style: fontstyle.Bold, Size: 9}),
	)

	for _, item := range inbox.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.AddRow(8,
			text.NewCol(2, labelOr(priorityLabels[item.Priority], string(item.Priority)), props.Text{Size: 8}),
			text.NewCol(2, labelOr(kindLabels[item.Kind], string(item.Kind)), props.Text{Size: 8}),
			text.NewCol(4, item.BusinessName, props.Text{Size: 8}),
			text.NewCol(4, describeMetadata(item.Metadata), props.Text{Size: 8}),
		)
	}

	if len(inbox.Items) == 0 {
		m.AddRow(10, col.New(12).Add(
			text.New("Sin pendientes.", props.Text{Size: 9, Top: 2}),
		))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}

// describeMetadata flattens item metadata into "key: value" pairs in key
// order so reports are reproducible.
func describeMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, meta[k]))
	}
	return strings.Join(parts, ", ")
}
