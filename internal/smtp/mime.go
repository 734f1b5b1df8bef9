package smtp

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"furrydomains/backend/internal/domain"
)

// maxMultipartDepth 嵌套 multipart 的最大层数
const maxMultipartDepth = 8

// ErrMissingBoundary multipart 邮件缺少 boundary
var ErrMissingBoundary = errors.New("multipart message without boundary")

// ParsedMail 解析后的邮件
type ParsedMail struct {
	Subject     string
	From        string
	To          string
	MessageID   string
	Text        string
	HTML        string
	Attachments []*domain.Attachment
}

// ParseMail 解析原始邮件，提取正文与附件
func ParseMail(raw []byte) (*ParsedMail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	parsed := &ParsedMail{
		Subject:     decodeHeader(msg.Header.Get("Subject")),
		From:        decodeHeader(msg.Header.Get("From")),
		To:          decodeHeader(msg.Header.Get("To")),
		MessageID:   strings.Trim(msg.Header.Get("Message-Id"), "<> "),
		Attachments: make([]*domain.Attachment, 0),
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		// 缺少 Content-Type 时按纯文本处理
		mediaType, params = "text/plain", map[string]string{}
	}
	if err := parsed.addPart(msg.Body, mediaType, params, msg.Header.Get("Content-Transfer-Encoding"), 0); err != nil {
		return nil, err
	}
	return parsed, nil
}

func (p *ParsedMail) addPart(body io.Reader, mediaType string, params map[string]string, transferEncoding string, depth int) error {
	if !strings.HasPrefix(mediaType, "multipart/") {
		text, err := decodeText(body, transferEncoding, params["charset"])
		if err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
		p.setBody(mediaType, text)
		return nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return ErrMissingBoundary
	}
	if depth >= maxMultipartDepth {
		return nil
	}
	return p.walk(multipart.NewReader(body, boundary), depth+1)
}

func (p *ParsedMail) walk(mr *multipart.Reader, depth int) error {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse multipart: %w", err)
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			mediaType, params = "text/plain", map[string]string{}
		}
		transferEncoding := part.Header.Get("Content-Transfer-Encoding")

		if filename, ok := attachmentName(part.Header.Get("Content-Disposition"), params); ok {
			content, err := io.ReadAll(transferDecoder(part, transferEncoding))
			if err != nil {
				continue
			}
			p.Attachments = append(p.Attachments, &domain.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Size:        int64(len(content)),
				Content:     content,
			})
			continue
		}

		if err := p.addPart(part, mediaType, params, transferEncoding, depth); err != nil {
			if errors.Is(err, ErrMissingBoundary) {
				continue
			}
			return err
		}
	}
}

// setBody 同类型正文只保留第一段
func (p *ParsedMail) setBody(mediaType, text string) {
	switch {
	case strings.HasPrefix(mediaType, "text/html"):
		if p.HTML == "" {
			p.HTML = text
		}
	case strings.HasPrefix(mediaType, "text/"):
		if p.Text == "" {
			p.Text = text
		}
	}
}

// attachmentName 判断该部分是否为附件并返回文件名
func attachmentName(disposition string, params map[string]string) (string, bool) {
	if disposition == "" {
		return "", false
	}
	dispType, dispParams, err := mime.ParseMediaType(disposition)
	if err != nil || (dispType != "attachment" && dispType != "inline") {
		return "", false
	}
	name := dispParams["filename"]
	if name == "" {
		name = params["name"]
	}
	// 内联但没有文件名的部分视为正文
	if name == "" && dispType == "inline" {
		return "", false
	}
	if name == "" {
		name = "unnamed"
	}
	return decodeHeader(name), true
}

func transferDecoder(r io.Reader, transferEncoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// decodeText 解码传输编码并把字符集转换为 UTF-8
func decodeText(r io.Reader, transferEncoding, charset string) (string, error) {
	body, err := io.ReadAll(transferDecoder(r, transferEncoding))
	if err != nil {
		return "", err
	}
	enc := charsetEncoding(charset)
	if enc == nil {
		return string(body), nil
	}
	converted, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return string(body), nil
	}
	return string(converted), nil
}

// charsetEncoding UTF-8 与未知字符集返回 nil
func charsetEncoding(charset string) encoding.Encoding {
	charset = strings.ToLower(strings.Trim(strings.TrimSpace(charset), `"`))
	switch charset {
	case "", "utf-8", "utf8", "us-ascii":
		return nil
	case "gb2312", "gbk", "gb18030":
		return simplifiedchinese.GB18030
	case "big5":
		return traditionalchinese.Big5
	case "iso-2022-jp":
		return japanese.ISO2022JP
	case "shift_jis", "sjis":
		return japanese.ShiftJIS
	case "euc-jp":
		return japanese.EUCJP
	case "euc-kr", "ks_c_5601-1987":
		return korean.EUCKR
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil
	}
	return enc
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc := charsetEncoding(charset)
		if enc == nil {
			return input, nil
		}
		return transform.NewReader(input, enc.NewDecoder()), nil
	},
}

// decodeHeader 解码 RFC 2047 编码的头部，失败时原样返回
func decodeHeader(value string) string {
	if value == "" {
		return value
	}
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
