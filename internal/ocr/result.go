package ocr

import "strings"

// MinConfidence is the acceptance threshold for an extracted receipt.
const MinConfidence = 0.85

// Result is the analyzeResult portion of a completed OCR operation.
type Result struct {
	Content   string     `json:"content"`
	Documents []Document `json:"documents"`
}

// Document is one recognized document with its typed fields.
type Document struct {
	DocType    string           `json:"docType"`
	Confidence float64          `json:"confidence"`
	Fields     map[string]Field `json:"fields"`
}

// Field is a recursively typed OCR field value.
type Field struct {
	ValueString   string           `json:"valueString,omitempty"`
	ValueNumber   *float64         `json:"valueNumber,omitempty"`
	ValueDate     string           `json:"valueDate,omitempty"`
	ValueTime     string           `json:"valueTime,omitempty"`
	ValueArray    []Field          `json:"valueArray,omitempty"`
	ValueObject   map[string]Field `json:"valueObject,omitempty"`
	ValueCurrency *Currency        `json:"valueCurrency,omitempty"`
}

// Currency is the currency annotation on amount fields.
type Currency struct {
	CurrencyCode string `json:"currencyCode"`
}

// Doc returns the first recognized document, or nil.
func (r *Result) Doc() *Document {
	if r == nil || len(r.Documents) == 0 {
		return nil
	}
	return &r.Documents[0]
}

// Number returns the numeric value of the named field, or def when absent.
func (d *Document) Number(name string, def float64) float64 {
	f, ok := d.Fields[name]
	if !ok || f.ValueNumber == nil {
		return def
	}
	return *f.ValueNumber
}

// String returns the string value of the named field, or def when absent.
func (d *Document) String(name, def string) string {
	f, ok := d.Fields[name]
	if !ok || f.ValueString == "" {
		return def
	}
	return f.ValueString
}

// TaxCurrencyCodes collects the currency codes present on TaxDetails amounts,
// in document order.
func (r *Result) TaxCurrencyCodes() []string {
	doc := r.Doc()
	if doc == nil {
		return nil
	}
	tax, ok := doc.Fields["TaxDetails"]
	if !ok {
		return nil
	}
	var codes []string
	for _, entry := range tax.ValueArray {
		amount, ok := entry.ValueObject["Amount"]
		if !ok || amount.ValueCurrency == nil || amount.ValueCurrency.CurrencyCode == "" {
			continue
		}
		codes = append(codes, amount.ValueCurrency.CurrencyCode)
	}
	return codes
}

// IsValidReceipt reports whether the extraction is confident enough to
// accept: the document type must be a receipt variant and confidence must
// reach MinConfidence.
func IsValidReceipt(r *Result) bool {
	doc := r.Doc()
	return doc != nil && strings.HasPrefix(doc.DocType, "receipt") && doc.Confidence >= MinConfidence
}
