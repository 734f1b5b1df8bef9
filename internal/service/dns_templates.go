package service

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"furrydomains/backend/internal/domain"
)

//go:embed templates/dns_templates.yaml
var dnsTemplatesYAML []byte

// ErrUnknownTemplate 模板不存在
var ErrUnknownTemplate = errors.New("unknown dns template")

// DNSTemplate 预置的一组记录
type DNSTemplate struct {
	ID          string                 `yaml:"id" json:"id"`
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description" json:"description"`
	Type        domain.RecordType      `yaml:"type" json:"type"`
	Records     []domain.RecordPayload `yaml:"records" json:"records"`
}

// LoadDNSTemplates 解析内置模板
func LoadDNSTemplates() ([]*DNSTemplate, error) {
	var templates []*DNSTemplate
	if err := yaml.Unmarshal(dnsTemplatesYAML, &templates); err != nil {
		return nil, fmt.Errorf("parse dns templates: %w", err)
	}
	for _, tpl := range templates {
		if _, err := domain.ParseRecordType(string(tpl.Type)); err != nil {
			return nil, fmt.Errorf("template %s: %w", tpl.ID, err)
		}
		if len(tpl.Records) == 0 {
			return nil, fmt.Errorf("template %s has no records", tpl.ID)
		}
	}
	return templates, nil
}

func findTemplate(templates []*DNSTemplate, id string) (*DNSTemplate, error) {
	for _, tpl := range templates {
		if tpl.ID == id {
			return tpl, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
}
