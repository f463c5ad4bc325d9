package llm

import (
	"fmt"

	"github.com/subauto/subauto/pkg/log"
)

// Manager owns the active provider, its cached model list and the selected
// model. It is handed to the pipeline instead of any process-wide state.
type Manager struct {
	provider  Provider
	preferred string

	available  []ModelInfo
	selected   string
	configured bool
}

func NewManager(provider Provider, preferredModel string) *Manager {
	return &Manager{
		provider:  provider,
		preferred: preferredModel,
	}
}

// Validate probes the provider connection and refreshes the model list. A
// model is auto-selected when none is selected yet.
func (m *Manager) Validate() (bool, string) {
	ok, msg := m.provider.ValidateConnection()
	if !ok {
		m.configured = false
		return false, msg
	}

	models, err := m.provider.ListModels()
	if err != nil {
		m.configured = false
		return false, fmt.Sprintf("failed to list models: %v", err)
	}
	m.available = models
	m.configured = true

	if m.selected == "" {
		m.autoSelect()
	}
	return true, msg
}

// IsConfigured reports whether a successful Validate has happened.
func (m *Manager) IsConfigured() bool {
	return m.configured
}

func (m *Manager) Provider() Provider {
	return m.provider
}

// AvailableModels returns a copy of the cached model list.
func (m *Manager) AvailableModels() []ModelInfo {
	return append([]ModelInfo(nil), m.available...)
}

func (m *Manager) SelectedModel() string {
	return m.selected
}

// SelectedModelInfo returns the ModelInfo of the selected model, if listed.
func (m *Manager) SelectedModelInfo() (ModelInfo, bool) {
	for _, model := range m.available {
		if model.Name == m.selected {
			return model, true
		}
	}
	return ModelInfo{}, false
}

// Select picks a model by name, requiring it to be in the cached list when
// one exists. Unlisted names are accepted before the first Validate so jobs
// can be prepared offline.
func (m *Manager) Select(name string) bool {
	if name == "" {
		return false
	}
	if len(m.available) == 0 {
		m.selected = name
		return true
	}
	for _, model := range m.available {
		if model.Name == name {
			m.selected = name
			return true
		}
	}
	return false
}

func (m *Manager) autoSelect() {
	if len(m.available) == 0 {
		if m.preferred != "" {
			m.selected = m.preferred
		}
		return
	}

	if m.preferred != "" {
		for _, model := range m.available {
			if model.Name == m.preferred {
				m.selected = model.Name
				return
			}
		}
		log.Warn("Configured model %s not offered by provider, falling back to first listed", m.preferred)
	}

	m.selected = m.available[0].Name
}
