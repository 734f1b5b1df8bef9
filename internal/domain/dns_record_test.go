package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestParseRecordType(t *testing.T) {
	rt, err := ParseRecordType(" cname ")
	require.NoError(t, err)
	assert.Equal(t, RecordTypeCNAME, rt)

	_, err = ParseRecordType("PTR")
	assert.ErrorIs(t, err, ErrUnknownRecordType)
}

func TestDecodeRecordValue(t *testing.T) {
	tests := []struct {
		name    string
		rt      RecordType
		payload RecordPayload
		want    RecordValue
		wantErr bool
	}{
		{"A 记录", RecordTypeA, RecordPayload{Content: "1.2.3.4"}, AValue{Address: "1.2.3.4"}, false},
		{"A 记录不接受 IPv6", RecordTypeA, RecordPayload{Content: "::1"}, nil, true},
		{"AAAA 记录", RecordTypeAAAA, RecordPayload{Content: "2001:db8::1"}, AAAAValue{Address: "2001:db8::1"}, false},
		{"AAAA 记录不接受 IPv4", RecordTypeAAAA, RecordPayload{Content: "1.2.3.4"}, nil, true},
		{"CNAME 去掉末尾的点", RecordTypeCNAME, RecordPayload{Content: "User.GitHub.io."}, CNAMEValue{Target: "user.github.io"}, false},
		{"TXT 记录", RecordTypeTXT, RecordPayload{Content: "v=spf1 -all"}, TXTValue{Text: "v=spf1 -all"}, false},
		{"TXT 为空", RecordTypeTXT, RecordPayload{}, nil, true},
		{"MX 记录", RecordTypeMX, RecordPayload{Content: "aspmx.l.google.com", Priority: intPtr(1)}, MXValue{Host: "aspmx.l.google.com", Priority: 1}, false},
		{"MX 缺少优先级", RecordTypeMX, RecordPayload{Content: "aspmx.l.google.com"}, nil, true},
		{
			"SRV 记录",
			RecordTypeSRV,
			RecordPayload{Content: "mc.example.com", Priority: intPtr(0), Weight: intPtr(5), Port: intPtr(25565), Service: "_minecraft", Protocol: "_tcp"},
			SRVValue{Service: "_minecraft", Protocol: "_tcp", Priority: 0, Weight: 5, Port: 25565, Target: "mc.example.com"},
			false,
		},
		{"SRV 协议错误", RecordTypeSRV, RecordPayload{Content: "mc.example.com", Priority: intPtr(0), Port: intPtr(1), Service: "_mc", Protocol: "tcp"}, nil, true},
		{"SRV 端口为零", RecordTypeSRV, RecordPayload{Content: "mc.example.com", Priority: intPtr(0), Port: intPtr(0), Service: "_mc", Protocol: "_tcp"}, nil, true},
		{"NS 记录", RecordTypeNS, RecordPayload{Content: "ns1.example.net"}, NSValue{Host: "ns1.example.net"}, false},
		{"未知类型", RecordType("PTR"), RecordPayload{Content: "x"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRecordValue(tt.rt, tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rt, got.Type())
		})
	}
}

func TestSRVValue_Payload(t *testing.T) {
	v := SRVValue{Service: "_sip", Protocol: "_udp", Priority: 10, Weight: 20, Port: 5060, Target: "sip.example.com"}
	p := v.Payload()
	assert.Equal(t, "sip.example.com", p.Content)
	require.NotNil(t, p.Port)
	assert.Equal(t, 5060, *p.Port)
	assert.Equal(t, "_sip", p.Service)

	back, err := DecodeRecordValue(RecordTypeSRV, p)
	require.NoError(t, err)
	assert.Equal(t, v, back)
}

func TestRecordType_IsInfrastructure(t *testing.T) {
	assert.True(t, RecordTypeMX.IsInfrastructure())
	assert.True(t, RecordTypeTXT.IsInfrastructure())
	for _, rt := range []RecordType{RecordTypeA, RecordTypeAAAA, RecordTypeCNAME, RecordTypeNS, RecordTypeSRV} {
		assert.False(t, rt.IsInfrastructure(), rt)
	}
}

func TestDomainRecordSet(t *testing.T) {
	set := &DomainRecordSet{
		UserID: "u1",
		Records: []*DomainRecord{
			{Domain: "foo.is-a-furry.dev", RecordType: RecordTypeA},
			{Domain: "foo.is-a-furry.dev", RecordType: RecordTypeMX},
			{Domain: "bar.is-a-furry.dev", RecordType: RecordTypeCNAME},
		},
	}
	assert.Equal(t, []string{"foo.is-a-furry.dev", "bar.is-a-furry.dev"}, set.Names())
	assert.True(t, set.Owns("foo.is-a-furry.dev", ""))
	assert.True(t, set.Owns("foo.is-a-furry.dev", RecordTypeMX))
	assert.False(t, set.Owns("foo.is-a-furry.dev", RecordTypeTXT))
	assert.False(t, set.Owns("baz.is-a-furry.dev", ""))
}

func TestMailbox_AcceptsFrom(t *testing.T) {
	open := &Mailbox{}
	assert.True(t, open.AcceptsFrom("anyone@example.com"))

	m := &Mailbox{AllowedSenders: []string{"friend@example.com", "@trusted.org"}}
	assert.True(t, m.AcceptsFrom("Friend <FRIEND@example.com>"))
	assert.True(t, m.AcceptsFrom("bot@trusted.org"))
	assert.False(t, m.AcceptsFrom("spam@example.com"))
}

func TestMessage_InFolder(t *testing.T) {
	inbound := &Message{}
	sent := &Message{Sent: true}
	trashed := &Message{Deleted: true, Sent: true}

	assert.True(t, inbound.InFolder(FolderInbox))
	assert.False(t, inbound.InFolder(FolderSent))
	assert.True(t, sent.InFolder(FolderSent))
	assert.False(t, sent.InFolder(FolderInbox))
	assert.True(t, trashed.InFolder(FolderDeleted))
	assert.False(t, trashed.InFolder(FolderSent))
}
