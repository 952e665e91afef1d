// Package notification tells staff about a completed loan application over
// e-mail (Resend) and WhatsApp (Twilio). Channels fail independently and the
// dispatch is best-effort relative to the already-persisted application.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backend/internal/config"
	"backend/pkg/apperror"
)

// LoanDetails is the payload of a details-submitted notification.
type LoanDetails struct {
	ApplicationID          string  `json:"applicationId"`
	FullName               string  `json:"full_name"`
	DNI                    string  `json:"dni"`
	Phone                  string  `json:"phone"`
	Email                  string  `json:"email"`
	Address                string  `json:"address"`
	Amount                 float64 `json:"amount"`
	EmploymentStatus       string  `json:"employment_status"`
	MonthlyIncome          float64 `json:"monthly_income"`
	LoanPurpose            string  `json:"loan_purpose"`
	PreferredContactMethod string  `json:"preferred_contact_method"`
}

// DispatchResult reports what each channel did. WhatsAppInfo is informational
// only; a failed or skipped WhatsApp send never fails the dispatch.
type DispatchResult struct {
	EmailID      string `json:"email"`
	WhatsAppInfo string `json:"whatsapp_info"`
}

// Notifier is the capability the workflow depends on.
type Notifier interface {
	NotifyDetailsSubmitted(ctx context.Context, details LoanDetails) (DispatchResult, error)
}

type dispatcher struct {
	cfg    config.NotificationConfig
	client *http.Client

	resendURL     string
	twilioBaseURL string
}

// NewDispatcher returns a Notifier backed by the Resend and Twilio HTTP APIs.
func NewDispatcher(cfg config.NotificationConfig) Notifier {
	return &dispatcher{
		cfg:           cfg,
		client:        &http.Client{Timeout: 30 * time.Second},
		resendURL:     "https://api.resend.com/emails",
		twilioBaseURL: "https://api.twilio.com",
	}
}

// NotifyDetailsSubmitted sends the staff e-mail, then attempts the WhatsApp
// message. The e-mail is the primary channel: its failure is returned.
// WhatsApp failure is logged and folded into the result instead.
func (d *dispatcher) NotifyDetailsSubmitted(ctx context.Context, details LoanDetails) (DispatchResult, error) {
	emailID, err := d.sendEmail(ctx, details)
	if err != nil {
		return DispatchResult{}, err
	}

	result := DispatchResult{EmailID: emailID, WhatsAppInfo: "sent"}
	if err := d.sendWhatsApp(ctx, details); err != nil {
		log.Printf("WhatsApp notification failed, continuing: %v", err)
		result.WhatsAppInfo = "failed: " + err.Error()
	}

	return result, nil
}

func (d *dispatcher) sendEmail(ctx context.Context, details LoanDetails) (string, error) {
	if d.cfg.ResendAPIKey == "" || d.cfg.EmailTo == "" {
		return "", apperror.New(apperror.KindUpstreamUnavailable, "e-mail channel is not configured")
	}

	contactMethod := "Correo Electrónico"
	if details.PreferredContactMethod == "whatsapp" {
		contactMethod = "WhatsApp"
	}

	payload := map[string]interface{}{
		"from":    d.cfg.EmailFrom,
		"to":      []string{d.cfg.EmailTo},
		"subject": fmt.Sprintf("Nueva Solicitud de Préstamo - %s", details.FullName),
		"html":    renderEmailHTML(details, contactMethod, d.cfg.AdminURL),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.resendURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+d.cfg.ResendAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", apperror.Wrap(apperror.KindUpstreamUnavailable, "e-mail provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", apperror.New(apperror.KindRateLimited, "e-mail provider rate limit exceeded")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", apperror.New(apperror.KindUpstreamUnavailable,
			fmt.Sprintf("e-mail provider error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apperror.Wrap(apperror.KindParse, "malformed e-mail provider response", err)
	}

	return parsed.ID, nil
}

func (d *dispatcher) sendWhatsApp(ctx context.Context, details LoanDetails) error {
	if d.cfg.TwilioAccountSID == "" || d.cfg.TwilioAuthToken == "" ||
		d.cfg.TwilioWhatsAppFrom == "" || d.cfg.TwilioWhatsAppTo == "" {
		log.Println("Twilio credentials not configured, skipping WhatsApp notification")
		return nil
	}

	message := fmt.Sprintf(`*Nueva Solicitud de Préstamo Recibida!*

*Nombre:* %s
*Teléfono:* %s
*Monto Solicitado:* S/ %.2f
*Fecha de Envío:* %s

Por favor revisa esta solicitud en el panel de administración.`,
		details.FullName, details.Phone, details.Amount,
		time.Now().Format("02 Jan 2006 15:04"))

	form := url.Values{}
	form.Set("From", d.cfg.TwilioWhatsAppFrom)
	form.Set("To", d.cfg.TwilioWhatsAppTo)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", d.twilioBaseURL, d.cfg.TwilioAccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(d.cfg.TwilioAccountSID, d.cfg.TwilioAuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.KindUpstreamUnavailable, "messaging provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return apperror.New(apperror.KindUpstreamUnavailable,
			fmt.Sprintf("messaging provider error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	return nil
}

func renderEmailHTML(details LoanDetails, contactMethod, adminURL string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`)
	b.WriteString(`<h1>Nueva Solicitud de Préstamo</h1>`)
	b.WriteString(`<p>Un cliente ha completado su solicitud después de confirmar el pago.</p>`)
	b.WriteString(`<h2>Información del Solicitante</h2><table>`)

	rows := [][2]string{
		{"ID de Solicitud", details.ApplicationID},
		{"Nombre Completo", details.FullName},
		{"DNI", details.DNI},
		{"Teléfono", details.Phone},
		{"Email", details.Email},
		{"Dirección", details.Address},
		{"Estado Laboral", details.EmploymentStatus},
		{"Ingreso Mensual", fmt.Sprintf("S/ %.2f", details.MonthlyIncome)},
		{"Contacto Preferido", contactMethod},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, `<tr><td><strong>%s:</strong></td><td>%s</td></tr>`, row[0], row[1])
	}
	b.WriteString(`</table>`)

	fmt.Fprintf(&b, `<p style="font-size: 20px;"><strong>Monto Solicitado: S/ %.2f</strong></p>`, details.Amount)
	fmt.Fprintf(&b, `<h3>Motivo del Préstamo:</h3><p>%s</p>`, details.LoanPurpose)
	if adminURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s">Ver en Panel de Admin</a></p>`, adminURL)
	}
	fmt.Fprintf(&b, `<hr><p style="font-size: 12px; color: #666;">Este correo fue generado automáticamente. Siguiente paso: revisar la solicitud y contactar al cliente por %s.</p>`, contactMethod)
	b.WriteString(`</body></html>`)

	return b.String()
}
