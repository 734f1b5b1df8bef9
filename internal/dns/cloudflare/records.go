package cloudflare

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"furrydomains/backend/internal/dns"
	"furrydomains/backend/internal/domain"
)

type srvData struct {
	Priority int    `json:"priority"`
	Weight   int    `json:"weight"`
	Port     int    `json:"port"`
	Target   string `json:"target"`
}

type apiRecord struct {
	ID       string   `json:"id,omitempty"`
	Type     string   `json:"type"`
	Name     string   `json:"name"`
	Content  string   `json:"content,omitempty"`
	Proxied  *bool    `json:"proxied,omitempty"`
	Priority *int     `json:"priority,omitempty"`
	Data     *srvData `json:"data,omitempty"`
	TTL      int      `json:"ttl,omitempty"`
	Comment  string   `json:"comment,omitempty"`
}

func toAPIRecord(r dns.Record, proxied bool, comment string) apiRecord {
	rec := apiRecord{
		Type:     string(r.Type),
		Name:     r.Name,
		TTL:      1, // automatic
		Comment:  comment,
		Priority: r.Priority,
	}
	if r.Type == domain.RecordTypeSRV {
		data := &srvData{Target: r.Content}
		if r.Priority != nil {
			data.Priority = *r.Priority
		}
		if r.Weight != nil {
			data.Weight = *r.Weight
		}
		if r.Port != nil {
			data.Port = *r.Port
		}
		rec.Data = data
		rec.Priority = nil
		return rec
	}
	rec.Content = r.Content
	if dns.Proxiable(r.Type) {
		rec.Proxied = &proxied
	}
	return rec
}

func fromAPIRecord(rec apiRecord) dns.Record {
	r := dns.Record{
		ID:       rec.ID,
		Type:     domain.RecordType(rec.Type),
		Name:     rec.Name,
		Content:  rec.Content,
		Priority: rec.Priority,
	}
	if rec.Proxied != nil {
		r.Proxied = *rec.Proxied
	}
	if rec.Data != nil {
		priority, weight, port := rec.Data.Priority, rec.Data.Weight, rec.Data.Port
		r.Content = rec.Data.Target
		r.Priority = &priority
		r.Weight = &weight
		r.Port = &port
	}
	return r
}

// ListRecords 查询名称下的记录
func (c *Client) ListRecords(ctx context.Context, zoneID, name string, recordType domain.RecordType) ([]dns.Record, error) {
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(perPage))
	if recordType == domain.RecordTypeSRV {
		query.Set("name.endswith", "."+name)
	} else {
		query.Set("name", name)
	}
	if recordType != "" {
		query.Set("type", string(recordType))
	}

	var result []apiRecord
	if err := c.do(ctx, "list_records", http.MethodGet, fmt.Sprintf("/zones/%s/dns_records", zoneID), query, nil, &result); err != nil {
		return nil, err
	}

	records := make([]dns.Record, 0, len(result))
	for _, rec := range result {
		// name.endswith 同样匹配更深层子域名的 SRV 记录
		if recordType == domain.RecordTypeSRV && !dns.IsServiceOwner(rec.Name, name) {
			continue
		}
		records = append(records, fromAPIRecord(rec))
	}
	return records, nil
}

// CreateRecord 创建记录；地址类记录使用配置的默认代理状态
func (c *Client) CreateRecord(ctx context.Context, zoneID string, record dns.Record, comment string) (*dns.Record, error) {
	var created apiRecord
	body := toAPIRecord(record, c.proxied, comment)
	if err := c.do(ctx, "create_record", http.MethodPost, fmt.Sprintf("/zones/%s/dns_records", zoneID), nil, body, &created); err != nil {
		return nil, err
	}
	r := fromAPIRecord(created)
	return &r, nil
}

// UpdateRecord 覆盖已有记录，保留其代理状态
func (c *Client) UpdateRecord(ctx context.Context, zoneID string, record dns.Record, comment string) error {
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	body := toAPIRecord(record, record.Proxied, comment)
	return c.do(ctx, "update_record", http.MethodPut, fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, record.ID), nil, body, nil)
}

// DeleteRecord 删除记录
func (c *Client) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	return c.do(ctx, "delete_record", http.MethodDelete, fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID), nil, nil, nil)
}
