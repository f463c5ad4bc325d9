package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	ok      bool
	msg     string
	models  []ModelInfo
	listErr error
}

func (f *fakeProvider) ValidateConnection() (bool, string) { return f.ok, f.msg }
func (f *fakeProvider) ListModels() ([]ModelInfo, error)   { return f.models, f.listErr }
func (f *fakeProvider) GenerateContent(model, prompt string) (string, error) {
	return "", errors.New("not used")
}

func TestManager_ValidateSelectsPreferredModel(t *testing.T) {
	t.Parallel()

	m := NewManager(&fakeProvider{
		ok:  true,
		msg: "connected",
		models: []ModelInfo{
			{Name: "meta/llama-3"},
			{Name: "openai/gpt-4o"},
		},
	}, "openai/gpt-4o")

	ok, msg := m.Validate()
	require.True(t, ok)
	assert.Equal(t, "connected", msg)
	assert.True(t, m.IsConfigured())
	assert.Equal(t, "openai/gpt-4o", m.SelectedModel())
}

func TestManager_ValidateFallsBackToFirstListed(t *testing.T) {
	t.Parallel()

	m := NewManager(&fakeProvider{
		ok:     true,
		models: []ModelInfo{{Name: "meta/llama-3"}},
	}, "missing/model")

	ok, _ := m.Validate()
	require.True(t, ok)
	assert.Equal(t, "meta/llama-3", m.SelectedModel())
}

func TestManager_ValidateConnectionFailure(t *testing.T) {
	t.Parallel()

	m := NewManager(&fakeProvider{ok: false, msg: "no route"}, "")
	ok, msg := m.Validate()
	assert.False(t, ok)
	assert.Equal(t, "no route", msg)
	assert.False(t, m.IsConfigured())
}

func TestManager_SelectRequiresListedModel(t *testing.T) {
	t.Parallel()

	m := NewManager(&fakeProvider{
		ok:     true,
		models: []ModelInfo{{Name: "meta/llama-3"}},
	}, "")
	_, _ = m.Validate()

	assert.False(t, m.Select("missing/model"))
	assert.True(t, m.Select("meta/llama-3"))
	assert.Equal(t, "meta/llama-3", m.SelectedModel())
}

func TestManager_SelectBeforeValidateAcceptsAnyName(t *testing.T) {
	t.Parallel()

	m := NewManager(&fakeProvider{}, "")
	assert.True(t, m.Select("any/model"))
	assert.Equal(t, "any/model", m.SelectedModel())
}
