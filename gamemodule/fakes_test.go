package gamemodule

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SectorAlpha/AlphaGSM/datastore"
)

type fakeServer struct {
	name string
	data *datastore.Store
	sent []string
	out  bytes.Buffer
}

func newFakeServer(t *testing.T, name string, initial map[string]any) *fakeServer {
	t.Helper()
	data, err := datastore.Create(filepath.Join(t.TempDir(), name+".json"), initial)
	require.NoError(t, err)
	return &fakeServer{name: name, data: data}
}

func (s *fakeServer) Name() string           { return s.name }
func (s *fakeServer) Data() *datastore.Store { return s.data }
func (s *fakeServer) Out() io.Writer         { return &s.out }
func (s *fakeServer) Logger() *slog.Logger   { return slog.New(slog.DiscardHandler) }

func (s *fakeServer) Send(_ context.Context, input string) error {
	s.sent = append(s.sent, input)
	return nil
}

// scripted answers prompts in order and records the questions
type scripted struct {
	answers   []string
	questions []string
}

func (p *scripted) Prompt(question, def string) (string, error) {
	p.questions = append(p.questions, question)
	if len(p.answers) == 0 {
		return def, nil
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	if a == "" {
		return def, nil
	}
	return a, nil
}
