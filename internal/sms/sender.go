// Package sms sends verification codes to phone numbers. Production uses the
// Aliyun SMS verify-code API; development echoes codes to the log.
package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dypnsapi "github.com/alibabacloud-go/dypnsapi-20170525/v3/client"
	"github.com/alibabacloud-go/tea/tea"
)

// Sender delivers a one-time verification code to a phone number.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// AliyunConfig configures the Aliyun verify-code gateway.
type AliyunConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	SignName        string
	TemplateCode    string
	Endpoint        string
}

// AliyunSender sends codes through the Aliyun dypnsapi SendSmsVerifyCode API.
type AliyunSender struct {
	client       *dypnsapi.Client
	signName     string
	templateCode string
}

func NewAliyunSender(cfg AliyunConfig) (*AliyunSender, error) {
	if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.AccessKeySecret) == "" {
		return nil, errors.New("aliyun access key required")
	}
	if strings.TrimSpace(cfg.SignName) == "" || strings.TrimSpace(cfg.TemplateCode) == "" {
		return nil, errors.New("aliyun sign name and template code required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = "dypnsapi.aliyuncs.com"
	}
	client, err := dypnsapi.NewClient(&openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		Endpoint:        tea.String(endpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("init aliyun sms client: %w", err)
	}
	return &AliyunSender{
		client:       client,
		signName:     cfg.SignName,
		templateCode: cfg.TemplateCode,
	}, nil
}

func (s *AliyunSender) SendCode(_ context.Context, phone, code string) error {
	resp, err := s.client.SendSmsVerifyCode(&dypnsapi.SendSmsVerifyCodeRequest{
		PhoneNumber:   tea.String(phone),
		SignName:      tea.String(s.signName),
		TemplateCode:  tea.String(s.templateCode),
		TemplateParam: tea.String(fmt.Sprintf(`{"code":"%s"}`, code)),
	})
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if resp == nil || resp.Body == nil {
		return errors.New("send sms: empty response")
	}
	if tea.StringValue(resp.Body.Code) != "OK" {
		return fmt.Errorf("send sms: %s: %s", tea.StringValue(resp.Body.Code), tea.StringValue(resp.Body.Message))
	}
	return nil
}

// LogSender writes codes to the log instead of sending them. Development only.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) SendCode(_ context.Context, phone, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sms verification code", "phone", phone, "code", code)
	return nil
}
