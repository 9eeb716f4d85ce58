// Package services contains the outward-facing integrations: the WhatsApp
// transport, spreadsheet row sources, and message template rendering.
package services

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/darzihub/darzi-notify/models"
)

// TemplateData carries the per-row fields the message bodies interpolate.
type TemplateData struct {
	Name         string
	OrderID      string
	Item         string
	Amount       string
	DueAmount    string
	DeliveryDate string
	Seq          int
	ShopName     string
}

const defaultShopName = "दर्ज़ी हब"

// Hindi bodies, one per message type. Kept as raw templates so the shop can
// review them without reading Go.
var templateBodies = map[models.MessageType]string{
	models.MessageTypeWelcome: `नमस्ते {{.Name}} जी! 🙏
{{.ShopName}} में आपका स्वागत है। आपका ऑर्डर {{.OrderID}} दर्ज कर लिया गया है। हम आपको हर अपडेट WhatsApp पर भेजेंगे। धन्यवाद!`,

	models.MessageTypeOrderConfirmation: `नमस्ते {{.Name}} जी!
आपका ऑर्डर {{.OrderID}}{{if .Item}} ({{.Item}}){{end}} पक्का हो गया है। ✂️
{{if .DeliveryDate}}तैयार होने की अनुमानित तारीख़: {{.DeliveryDate}}
{{end}}{{if .Amount}}कुल राशि: ₹{{.Amount}}
{{end}}- {{.ShopName}}`,

	models.MessageTypeOrderReady: `नमस्ते {{.Name}} जी! 🎉
आपका ऑर्डर {{.OrderID}}{{if .Item}} ({{.Item}}){{end}} तैयार है। कृपया दुकान से ले जाएँ।
{{if .DueAmount}}बकाया राशि: ₹{{.DueAmount}}
{{end}}- {{.ShopName}}`,

	models.MessageTypeDeliveryNotification: `नमस्ते {{.Name}} जी!
आपका ऑर्डर {{.OrderID}} डिलीवर हो गया है। हमें सेवा का मौका देने के लिए धन्यवाद! 🙏
- {{.ShopName}}`,

	models.MessageTypePickupReminder: `नमस्ते {{.Name}} जी!
याद दिलाना चाहेंगे कि आपका ऑर्डर {{.OrderID}} तैयार रखा है। कृपया सुविधा अनुसार ले जाएँ। (रिमाइंडर {{.Seq}})
- {{.ShopName}}`,

	models.MessageTypePaymentReminder: `नमस्ते {{.Name}} जी!
आपके ऑर्डर {{.OrderID}} पर ₹{{.DueAmount}} बकाया है। कृपया भुगतान कर दें। (रिमाइंडर {{.Seq}})
- {{.ShopName}}`,

	models.MessageTypeFabricWelcome: `नमस्ते {{.Name}} जी! 🙏
{{.ShopName}} फ़ैब्रिक कलेक्शन में आपका स्वागत है। बिल {{.OrderID}} दर्ज हो गया है।`,

	models.MessageTypeFabricPurchase: `नमस्ते {{.Name}} जी!
आपकी कपड़े की ख़रीद (बिल {{.OrderID}}{{if .Item}}, {{.Item}}{{end}}) के लिए धन्यवाद। 🧵
{{if .Amount}}कुल राशि: ₹{{.Amount}}
{{end}}- {{.ShopName}}`,

	models.MessageTypeFabricPaymentReminder: `नमस्ते {{.Name}} जी!
बिल {{.OrderID}} पर ₹{{.DueAmount}} बकाया है। कृपया भुगतान कर दें। (रिमाइंडर {{.Seq}})
- {{.ShopName}}`,

	models.MessageTypeCombinedOrder: `नमस्ते {{.Name}} जी!
आपका कपड़ा + सिलाई ऑर्डर {{.OrderID}} दर्ज हो गया है। ✂️🧵
{{if .DeliveryDate}}अनुमानित तारीख़: {{.DeliveryDate}}
{{end}}{{if .Amount}}कुल राशि: ₹{{.Amount}}
{{end}}- {{.ShopName}}`,

	models.MessageTypeWorkerDailyData: `नमस्ते {{.Name}} जी!
आज का काम: {{.Item}} (ऑर्डर {{.OrderID}}){{if .DeliveryDate}}
देने की तारीख़: {{.DeliveryDate}}{{end}}
- {{.ShopName}}`,

	models.MessageTypeFallback: `नमस्ते {{.Name}} जी!
आपके ऑर्डर {{.OrderID}} से जुड़ी जानकारी है। कृपया {{.ShopName}} से संपर्क करें। धन्यवाद!`,
}

// Renderer renders message bodies from parsed templates. Parse happens once
// at construction; Render never touches the template set concurrently in a
// mutating way, so it is safe for concurrent use.
type Renderer struct {
	shopName  string
	templates map[models.MessageType]*template.Template
}

func NewRenderer(shopName string) (*Renderer, error) {
	if shopName == "" {
		shopName = defaultShopName
	}
	parsed := make(map[models.MessageType]*template.Template, len(templateBodies))
	for msgType, body := range templateBodies {
		tmpl, err := template.New(string(msgType)).Parse(body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", msgType, err)
		}
		parsed[msgType] = tmpl
	}
	return &Renderer{shopName: shopName, templates: parsed}, nil
}

// Render produces the final body for a message type. Unknown types are an
// error so a new enum value cannot silently send an empty message.
func (r *Renderer) Render(msgType models.MessageType, data TemplateData) (string, error) {
	tmpl, ok := r.templates[msgType]
	if !ok {
		return "", fmt.Errorf("no template registered for message type %s", msgType)
	}
	if data.ShopName == "" {
		data.ShopName = r.shopName
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", msgType, err)
	}
	return strings.TrimSpace(b.String()), nil
}
