package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"
)

// buildMessage 构造 RFC 5322 邮件
func buildMessage(msg *OutboundMessage, messageID string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("From: %s\r\n", msg.From))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", now.Format(time.RFC1123Z)))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s>\r\n", messageID))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.Attachments) == 0 && msg.HTML == "" {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		buf.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
		buf.WriteString(msg.Text)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	kind := "alternative"
	if len(msg.Attachments) > 0 {
		kind = "mixed"
	}
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/%s; boundary=%q\r\n\r\n", kind, mw.Boundary()))

	if kind == "mixed" {
		// 正文放在嵌套的 multipart/alternative 中
		alt := &bytes.Buffer{}
		aw := multipart.NewWriter(alt)
		if err := writeBodies(aw, msg); err != nil {
			return nil, err
		}
		if err := aw.Close(); err != nil {
			return nil, err
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", aw.Boundary())},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(alt.Bytes()); err != nil {
			return nil, err
		}
		for _, a := range msg.Attachments {
			if err := writeAttachment(mw, a.Filename, a.ContentType, a.Content); err != nil {
				return nil, err
			}
		}
	} else if err := writeBodies(mw, msg); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeBodies(w *multipart.Writer, msg *OutboundMessage) error {
	if msg.Text != "" || msg.HTML == "" {
		if err := writeTextPart(w, "text/plain; charset=utf-8", msg.Text); err != nil {
			return err
		}
	}
	if msg.HTML != "" {
		return writeTextPart(w, "text/html; charset=utf-8", msg.HTML)
	}
	return nil
}

func writeTextPart(w *multipart.Writer, contentType, body string) error {
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return err
	}
	_, err = part.Write([]byte(body))
	return err
}

func writeAttachment(w *multipart.Writer, filename, contentType string, content []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": filename})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > 76 {
		if _, err := part.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err = part.Write([]byte(encoded + "\r\n"))
	return err
}
