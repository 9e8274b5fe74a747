// Package model holds the registry of evaluable masked language models.
package model

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"gopkg.in/yaml.v3"
)

// Family selects the tokenizer and model architecture of a checkpoint.
type Family string

const (
	FamilyBERT       Family = "bert"
	FamilyALBERT     Family = "albert"
	FamilyRoBERTa    Family = "roberta"
	FamilyXLMRoBERTa Family = "xlm-roberta"
	FamilyDistilBERT Family = "distilbert"
)

// Families lists the supported families.
var Families = []Family{FamilyBERT, FamilyALBERT, FamilyRoBERTa, FamilyXLMRoBERTa, FamilyDistilBERT}

//go:embed models.yaml
var defaultModels []byte

// Info describes one model.
type Info struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Family           Family `json:"family" yaml:"family"`
	Uncased          bool   `json:"uncased" yaml:"uncased"`
	MonthlyDownloads int64  `json:"monthly_downloads" yaml:"monthlyDownloads"`
}

type registryFile struct {
	Models []*Info `yaml:"models"`
}

// Registry is a read-only lookup of model metadata.
type Registry struct {
	list []*Info
	byID map[string]*Info
}

// Default returns the registry of the published model set.
func Default() (*Registry, error) {
	return Load(bytes.NewReader(defaultModels))
}

// LoadFile reads a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening models file %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a registry from YAML.
func Load(r io.Reader) (*Registry, error) {
	var rf registryFile
	if err := yaml.NewDecoder(r).Decode(&rf); err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}
	return New(rf.Models...)
}

// New builds a registry from model entries. Ids must be unique.
func New(models ...*Info) (*Registry, error) {
	reg := &Registry{
		list: make([]*Info, 0, len(models)),
		byID: make(map[string]*Info, len(models)),
	}
	for _, m := range models {
		if m == nil || m.ID == "" {
			return nil, fmt.Errorf("%w: model id required", bias.ErrInvalidArgument)
		}
		if _, ok := reg.byID[m.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate model %s", bias.ErrInvalidArgument, m.ID)
		}
		if !slices.Contains(Families, m.Family) {
			return nil, fmt.Errorf("%w: model %s has unsupported family %q", bias.ErrInvalidArgument, m.ID, m.Family)
		}
		if m.Name == "" {
			m.Name = m.ID
		}
		reg.list = append(reg.list, m)
		reg.byID[m.ID] = m
	}
	return reg, nil
}

// Get returns the model with id.
func (r *Registry) Get(id string) (*Info, error) {
	m, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", bias.ErrInvalidArgument, id)
	}
	return m, nil
}

// DisplayName returns the human readable name of id, or id itself when
// the model is not registered.
func (r *Registry) DisplayName(id string) string {
	if m, ok := r.byID[id]; ok {
		return m.Name
	}
	return id
}

// List returns all models in registry order.
func (r *Registry) List() []*Info {
	return slices.Clone(r.list)
}

// ByFamily returns the models of one family in registry order.
func (r *Registry) ByFamily(f Family) []*Info {
	out := make([]*Info, 0)
	for _, m := range r.list {
		if m.Family == f {
			out = append(out, m)
		}
	}
	return out
}

// Len is the number of registered models.
func (r *Registry) Len() int {
	return len(r.list)
}
