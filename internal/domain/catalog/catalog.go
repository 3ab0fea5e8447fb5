// Package catalog defines the canonical billing fields that uploaded file
// columns are mapped onto, and the heuristics for suggesting those mappings.
package catalog

// FieldID identifies a canonical billing field.
type FieldID string

const (
	FieldDate          FieldID = "date"
	FieldCustomerName  FieldID = "customer_name"
	FieldInvoiceNumber FieldID = "invoice_number"
	FieldAmount        FieldID = "amount"
	FieldDescription   FieldID = "description"
	FieldProductName   FieldID = "product_name"
	FieldQuantity      FieldID = "quantity"
	FieldUnitPrice     FieldID = "unit_price"
	FieldTaxAmount     FieldID = "tax_amount"
	FieldDiscount      FieldID = "discount"
	FieldPaymentMethod FieldID = "payment_method"
	FieldPaymentStatus FieldID = "payment_status"
	FieldDueDate       FieldID = "due_date"
	FieldPaymentDate   FieldID = "payment_date"

	// FieldCustom is the sentinel for user-defined fields. Values mapped to it
	// land in the record's custom-fields map under the mapping's custom name.
	FieldCustom FieldID = "custom"
)

// DataType declares how raw cell values for a field are coerced.
type DataType string

const (
	TypeString  DataType = "string"
	TypeNumber  DataType = "number"
	TypeDate    DataType = "date"
	TypeBoolean DataType = "boolean"
)

// Field describes one canonical billing field.
type Field struct {
	ID       FieldID
	Label    string
	Variants []string // known column-name variants, checked in order
	Required bool
	DataType DataType
}

// Catalog is an immutable set of canonical fields. Build one with Default and
// inject it wherever mapping suggestions or transforms are needed.
type Catalog struct {
	fields []Field
	byID   map[FieldID]Field
}

// New builds a catalog from a field list.
func New(fields []Field) *Catalog {
	byID := make(map[FieldID]Field, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}
	return &Catalog{fields: fields, byID: byID}
}

// Default returns the standard billing field catalog.
func Default() *Catalog {
	return New([]Field{
		{
			ID: FieldDate, Label: "Date", Required: true, DataType: TypeDate,
			Variants: []string{
				"date", "invoice_date", "invoice date", "bill_date", "bill date",
				"created_date", "created date", "timestamp",
			},
		},
		{
			ID: FieldCustomerName, Label: "Customer Name", Required: true, DataType: TypeString,
			Variants: []string{
				"customer_name", "customer name", "client_name", "client name",
				"company", "company_name", "customer", "client", "name",
			},
		},
		{
			ID: FieldInvoiceNumber, Label: "Invoice Number", Required: true, DataType: TypeString,
			Variants: []string{
				"invoice_number", "invoice number", "invoice_id", "invoice id",
				"inv_no", "inv no", "inv_num", "inv num", "inv_number",
				"bill_number", "bill number", "invoice",
			},
		},
		{
			ID: FieldAmount, Label: "Amount", Required: true, DataType: TypeNumber,
			Variants: []string{
				"amount", "total", "invoice_amount", "invoice amount",
				"bill_amount", "bill amount", "cost", "price", "value",
			},
		},
		{
			ID: FieldDescription, Label: "Description", DataType: TypeString,
			Variants: []string{"description", "notes", "memo", "comment", "details"},
		},
		{
			ID: FieldProductName, Label: "Product Name", DataType: TypeString,
			Variants: []string{"product_name", "product name", "product", "item", "service"},
		},
		{
			ID: FieldQuantity, Label: "Quantity", DataType: TypeNumber,
			Variants: []string{"quantity", "qty", "units", "count"},
		},
		{
			ID: FieldUnitPrice, Label: "Unit Price", DataType: TypeNumber,
			Variants: []string{"unit_price", "unit price", "rate", "price_per_unit"},
		},
		{
			ID: FieldTaxAmount, Label: "Tax Amount", DataType: TypeNumber,
			Variants: []string{"tax_amount", "tax amount", "tax", "vat", "gst"},
		},
		{
			ID: FieldDiscount, Label: "Discount", DataType: TypeNumber,
			Variants: []string{"discount", "discount_amount", "discount amount", "rebate"},
		},
		{
			ID: FieldPaymentMethod, Label: "Payment Method", DataType: TypeString,
			Variants: []string{"payment_method", "payment method", "method", "paid_via", "paid via"},
		},
		{
			ID: FieldPaymentStatus, Label: "Payment Status", DataType: TypeString,
			Variants: []string{"payment_status", "payment status", "status", "paid", "payment"},
		},
		{
			ID: FieldDueDate, Label: "Due Date", DataType: TypeDate,
			Variants: []string{"due_date", "due date", "payment_due", "payment due", "due"},
		},
		{
			ID: FieldPaymentDate, Label: "Payment Date", DataType: TypeDate,
			Variants: []string{"payment_date", "payment date", "paid_date", "paid date", "paid_on"},
		},
	})
}

// Fields returns the catalog fields in declaration order.
func (c *Catalog) Fields() []Field {
	out := make([]Field, len(c.fields))
	copy(out, c.fields)
	return out
}

// Lookup returns the field with the given id.
func (c *Catalog) Lookup(id FieldID) (Field, bool) {
	f, ok := c.byID[id]
	return f, ok
}

// RequiredFields returns the ids that must be mapped before an upload may be
// processed.
func (c *Catalog) RequiredFields() []FieldID {
	var out []FieldID
	for _, f := range c.fields {
		if f.Required {
			out = append(out, f.ID)
		}
	}
	return out
}
