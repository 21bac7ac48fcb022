package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/opscart/k8s-cost-agent/pkg/models"
	"github.com/opscart/k8s-cost-agent/pkg/reporter"
	"gopkg.in/yaml.v3"
)

// Handler defines the interface for output formatting
type Handler interface {
	DisplayRun(rec *models.RunRecord) error
	DisplayActions(actions []*models.Action) error
	Format() string
}

// NewHandler returns the handler for format: text, json or yaml
func NewHandler(format string, w io.Writer) (Handler, error) {
	switch format {
	case "", "text":
		return &textHandler{w: w}, nil
	case "json":
		return &encodedHandler{format: "json", w: w, marshal: func(v interface{}) ([]byte, error) {
			data, err := json.MarshalIndent(v, "", "  ")
			return append(data, '\n'), err
		}}, nil
	case "yaml":
		return &encodedHandler{format: "yaml", w: w, marshal: yaml.Marshal}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q: must be text, json, or yaml", format)
	}
}

type textHandler struct {
	w io.Writer
}

func (h *textHandler) DisplayRun(rec *models.RunRecord) error {
	return reporter.WriteRunText(rec, h.w)
}

func (h *textHandler) DisplayActions(actions []*models.Action) error {
	if len(actions) == 0 {
		_, err := fmt.Fprintln(h.w, "No actions")
		return err
	}
	for i, a := range actions {
		if _, err := fmt.Fprintf(h.w, "%d. %s (ID: %s)\n", i+1, a, a.ID); err != nil {
			return err
		}
	}
	return nil
}

func (h *textHandler) Format() string { return "text" }

type encodedHandler struct {
	format  string
	w       io.Writer
	marshal func(v interface{}) ([]byte, error)
}

func (h *encodedHandler) DisplayRun(rec *models.RunRecord) error {
	return h.write(rec)
}

func (h *encodedHandler) DisplayActions(actions []*models.Action) error {
	if actions == nil {
		actions = []*models.Action{}
	}
	return h.write(actions)
}

func (h *encodedHandler) write(v interface{}) error {
	data, err := h.marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", h.format, err)
	}
	_, err = h.w.Write(data)
	return err
}

func (h *encodedHandler) Format() string { return h.format }
