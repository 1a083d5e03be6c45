package schedule

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"training-portal/reporting-engine/internal/report"
	"training-portal/reporting-engine/pkg/storage"
)

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	SMTPHost    string `json:"smtp_host"`
	SMTPPort    int    `json:"smtp_port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
}

// DeliveryManager sends a finished export through one of the supported
// channels: email, webhook, ftp, filesystem or s3.
type DeliveryManager struct {
	emailConfig EmailConfig
	httpClient  *http.Client
	uploader    storage.Uploader
	logger      *zap.Logger
}

// NewDeliveryManager creates a delivery manager. The uploader may be nil if
// S3 delivery is not configured.
func NewDeliveryManager(emailConfig EmailConfig, uploader storage.Uploader, logger *zap.Logger) *DeliveryManager {
	return &DeliveryManager{
		emailConfig: emailConfig,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		uploader:    uploader,
		logger:      logger,
	}
}

// Deliver routes the export to the channel named by the delivery config.
func (d *DeliveryManager) Deliver(ctx context.Context, cfg report.DeliveryConfig, fileName string, data []byte) error {
	switch cfg.Method {
	case report.ScheduleDeliveryEmail:
		subject := "Scheduled report: " + fileName
		body := fmt.Sprintf("The scheduled report %q is attached.", fileName)
		return d.SendEmail(ctx, cfg.Recipients, subject, body, fileName, data)
	case report.ScheduleDeliveryWebhook:
		return d.deliverWebhook(ctx, cfg.WebhookURL, fileName, data)
	case report.ScheduleDeliveryFTP:
		return d.deliverFTP(ctx, cfg, fileName, data)
	case report.ScheduleDeliveryFilesystem:
		return d.deliverFilesystem(cfg.Path, fileName, data)
	case report.ScheduleDeliveryS3:
		return d.deliverS3(ctx, cfg, fileName, data)
	default:
		return fmt.Errorf("invalid delivery method '%s'", cfg.Method)
	}
}

// SendEmail sends the export as a MIME attachment over SMTP.
func (d *DeliveryManager) SendEmail(ctx context.Context, recipients []string, subject, body, attachmentName string, attachment []byte) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	msg := d.buildMessage(recipients, subject, body, attachmentName, attachment)
	auth := smtp.PlainAuth("", d.emailConfig.Username, d.emailConfig.Password, d.emailConfig.SMTPHost)
	addr := fmt.Sprintf("%s:%d", d.emailConfig.SMTPHost, d.emailConfig.SMTPPort)

	if err := smtp.SendMail(addr, auth, d.emailConfig.FromAddress, recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	d.logger.Info("email delivered",
		zap.Strings("to", recipients),
		zap.String("attachment", attachmentName))
	return nil
}

func (d *DeliveryManager) buildMessage(to []string, subject, body, attachmentName string, attachment []byte) []byte {
	var buf bytes.Buffer
	boundary := "----=_report_part_boundary"

	fmt.Fprintf(&buf, "From: %s <%s>\r\n", d.emailConfig.FromName, d.emailConfig.FromAddress)
	fmt.Fprintf(&buf, "To: %s\r\n", to[0])
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(body)
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: application/octet-stream; name=%q\r\n", attachmentName)
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", attachmentName)

	encoded := base64.StdEncoding.EncodeToString(attachment)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes()
}

func (d *DeliveryManager) deliverWebhook(ctx context.Context, url, fileName string, data []byte) error {
	payload, err := json.Marshal(map[string]any{
		"file_name":      fileName,
		"content_base64": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	d.logger.Info("webhook delivered", zap.String("url", url), zap.Int("status", resp.StatusCode))
	return nil
}

func (d *DeliveryManager) deliverFTP(ctx context.Context, cfg report.DeliveryConfig, fileName string, data []byte) error {
	conn, err := ftp.Dial(cfg.FTPHost, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("failed to dial ftp host: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(cfg.FTPUser, cfg.FTPPass); err != nil {
		return fmt.Errorf("ftp login failed: %w", err)
	}

	target := fileName
	if cfg.Path != "" {
		target = cfg.Path + "/" + fileName
	}
	if err := conn.Stor(target, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("ftp upload failed: %w", err)
	}
	d.logger.Info("ftp delivered", zap.String("host", cfg.FTPHost), zap.String("target", target))
	return nil
}

func (d *DeliveryManager) deliverFilesystem(path, fileName string, data []byte) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create delivery dir: %w", err)
	}
	target := filepath.Join(path, fileName)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	d.logger.Info("filesystem delivered", zap.String("target", target))
	return nil
}

func (d *DeliveryManager) deliverS3(ctx context.Context, cfg report.DeliveryConfig, fileName string, data []byte) error {
	if d.uploader == nil {
		return fmt.Errorf("s3 delivery is not configured")
	}
	key := fileName
	if cfg.KeyPrefix != "" {
		key = cfg.KeyPrefix + "/" + fileName
	}
	if err := d.uploader.Upload(ctx, cfg.Bucket, key, data, "application/octet-stream"); err != nil {
		return err
	}
	d.logger.Info("s3 delivered", zap.String("bucket", cfg.Bucket), zap.String("key", key))
	return nil
}
