// =============================================================================
// gst-tally - Tally XML Writer
// =============================================================================
//
// Renders balanced vouchers as a Tally "Import Data" envelope.
//
// XML STRUCTURE:
//
//   <ENVELOPE>
//     <HEADER>
//       <TALLYREQUEST>Import Data</TALLYREQUEST>
//     </HEADER>
//     <BODY>
//       <IMPORTDATA>
//         <REQUESTDESC>
//           <REPORTNAME>All Vouchers</REPORTNAME>
//           <STATICVARIABLES/>
//         </REQUESTDESC>
//         <REQUESTDATA>
//           <TALLYMESSAGE xmlns="TallyDeveloper">    <!-- one per voucher -->
//             <VOUCHER VCHTYPE="Sales" ACTION="Create" OBJVIEW="Invoice Voucher View">
//               <DATE>20240401</DATE>
//               ...
//               <LEDGERENTRIES.LIST>...</LEDGERENTRIES.LIST>
//               <ALLINVENTORYENTRIES.LIST>
//                 ...
//                 <ACCOUNTINGALLOCATIONS.LIST>...</ACCOUNTINGALLOCATIONS.LIST>
//               </ALLINVENTORYENTRIES.LIST>
//             </VOUCHER>
//           </TALLYMESSAGE>
//         </REQUESTDATA>
//       </IMPORTDATA>
//     </BODY>
//   </ENVELOPE>
//
// Amounts carry their sign and two decimal places; ISDEEMEDPOSITIVE is "Yes"
// for negative (debit) amounts.
//
// =============================================================================

package xmlwriter

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/ecofemme/gst-tally/internal/voucher"
)

const (
	dateLayout  = "20060102"
	unit        = "Nos"
	invoiceView = "Invoice Voucher View"
)

// =============================================================================
// XML GENERATION OPTIONS
// =============================================================================

// GenerateOptions contains options for XML generation.
type GenerateOptions struct {
	// Indent is the string used for indentation.
	// Default: "  " (two spaces)
	Indent string

	// IncludeXMLDeclaration determines whether to include the XML declaration.
	// Default: true
	IncludeXMLDeclaration bool

	// Encoding is the encoding for the XML declaration.
	// Default: "UTF-8"
	Encoding string

	// Company, when set, targets the import at a specific company via
	// STATICVARIABLES/SVCURRENTCOMPANY. Otherwise Tally uses the open company.
	Company string
}

// DefaultGenerateOptions returns the default generation options.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Indent:                "  ",
		IncludeXMLDeclaration: true,
		Encoding:              "UTF-8",
	}
}

// =============================================================================
// XML GENERATION FUNCTIONS
// =============================================================================

// Generate renders the vouchers with the default options.
func Generate(vouchers []*voucher.Voucher) ([]byte, error) {
	return GenerateWithOptions(vouchers, DefaultGenerateOptions())
}

// GenerateWithOptions renders the vouchers as one import envelope.
func GenerateWithOptions(vouchers []*voucher.Voucher, options GenerateOptions) ([]byte, error) {
	var buffer bytes.Buffer

	if options.IncludeXMLDeclaration {
		buffer.WriteString(fmt.Sprintf("<?xml version=\"1.0\" encoding=\"%s\"?>\n", options.Encoding))
	}

	for _, v := range vouchers {
		if v.Date.IsZero() {
			return nil, fmt.Errorf("voucher %s has no date", v.OrderID)
		}
	}

	writeElement(&buffer, buildEnvelope(vouchers, options), options.Indent, 0)

	return buffer.Bytes(), nil
}

// WriteFile renders the vouchers and writes them to path.
func WriteFile(path string, vouchers []*voucher.Voucher, options GenerateOptions) error {
	data, err := GenerateWithOptions(vouchers, options)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write XML file: %w", err)
	}
	return nil
}

// =============================================================================
// XML DOCUMENT BUILDING
// =============================================================================

// XMLElement represents a generic XML element.
type XMLElement struct {
	XMLName    xml.Name
	Attributes []xml.Attr   `xml:",attr"`
	Value      string       `xml:",chardata"`
	Children   []XMLElement `xml:",any"`
}

func buildEnvelope(vouchers []*voucher.Voucher, options GenerateOptions) XMLElement {
	static := element("STATICVARIABLES")
	if options.Company != "" {
		static.Children = append(static.Children, text("SVCURRENTCOMPANY", options.Company))
	}

	requestData := element("REQUESTDATA")
	for _, v := range vouchers {
		msg := element("TALLYMESSAGE", buildVoucher(v))
		msg.Attributes = []xml.Attr{attr("xmlns", "TallyDeveloper")}
		requestData.Children = append(requestData.Children, msg)
	}

	return element("ENVELOPE",
		element("HEADER", text("TALLYREQUEST", "Import Data")),
		element("BODY",
			element("IMPORTDATA",
				element("REQUESTDESC", text("REPORTNAME", "All Vouchers"), static),
				requestData,
			),
		),
	)
}

func buildVoucher(v *voucher.Voucher) XMLElement {
	date := v.Date.Format(dateLayout)
	vch := element("VOUCHER",
		text("DATE", date),
		text("EFFECTIVEDATE", date),
		text("VOUCHERTYPENAME", v.Type),
		text("VOUCHERNUMBER", v.Number),
		text("PARTYLEDGERNAME", v.PartyLedger),
		text("CSTFORMISSUETYPE", ""),
		text("CSTFORMRECVTYPE", ""),
		text("FBTPAYMENTTYPE", "Default"),
		text("PERSISTEDVIEW", invoiceView),
		text("NARRATION", v.Narration),
	)
	vch.Attributes = []xml.Attr{
		attr("VCHTYPE", v.Type),
		attr("ACTION", "Create"),
		attr("OBJVIEW", invoiceView),
	}

	for _, e := range v.Entries {
		if e.Inventory != nil {
			vch.Children = append(vch.Children, buildInventoryEntry(e))
			continue
		}
		vch.Children = append(vch.Children, element("LEDGERENTRIES.LIST",
			text("LEDGERNAME", e.Ledger),
			text("ISDEEMEDPOSITIVE", yesNo(e.IsDeemedPositive())),
			text("AMOUNT", formatAmount(e.Amount)),
		))
	}

	return vch
}

func buildInventoryEntry(e voucher.LedgerEntry) XMLElement {
	inv := e.Inventory
	qty := fmt.Sprintf("%d %s", inv.Quantity, unit)
	deemed := yesNo(e.IsDeemedPositive())
	amount := formatAmount(e.Amount)

	return element("ALLINVENTORYENTRIES.LIST",
		text("STOCKITEMNAME", inv.StockItem),
		text("ISDEEMEDPOSITIVE", deemed),
		text("RATE", fmt.Sprintf("%s/%s", inv.Rate.StringFixed(2), unit)),
		text("AMOUNT", amount),
		text("ACTUALQTY", qty),
		text("BILLEDQTY", qty),
		text("GODOWNNAME", inv.Warehouse),
		element("ACCOUNTINGALLOCATIONS.LIST",
			text("LEDGERNAME", e.Ledger),
			text("ISDEEMEDPOSITIVE", deemed),
			text("AMOUNT", amount),
		),
	)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func element(name string, children ...XMLElement) XMLElement {
	return XMLElement{XMLName: xml.Name{Local: name}, Children: children}
}

// text creates a simple XML element with a text value.
func text(name, value string) XMLElement {
	return XMLElement{XMLName: xml.Name{Local: name}, Value: value}
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// writeElement writes an XML element to the buffer with indentation.
func writeElement(buffer *bytes.Buffer, element XMLElement, indent string, level int) {
	for i := 0; i < level; i++ {
		buffer.WriteString(indent)
	}

	buffer.WriteString("<")
	buffer.WriteString(element.XMLName.Local)

	for _, attr := range element.Attributes {
		buffer.WriteString(fmt.Sprintf(" %s=\"%s\"", attr.Name.Local, escapeXML(attr.Value)))
	}

	if len(element.Children) == 0 && element.Value == "" {
		buffer.WriteString("/>\n")
		return
	}

	buffer.WriteString(">")

	if element.Value != "" {
		buffer.WriteString(escapeXML(element.Value))
	} else {
		buffer.WriteString("\n")

		for _, child := range element.Children {
			writeElement(buffer, child, indent, level+1)
		}

		for i := 0; i < level; i++ {
			buffer.WriteString(indent)
		}
	}

	buffer.WriteString("</")
	buffer.WriteString(element.XMLName.Local)
	buffer.WriteString(">\n")
}

// escapeXML escapes special characters for XML and drops characters an
// XML document may not contain, such as pasted control codes.
func escapeXML(s string) string {
	var buffer bytes.Buffer

	for _, r := range s {
		switch r {
		case '&':
			buffer.WriteString("&amp;")
		case '<':
			buffer.WriteString("&lt;")
		case '>':
			buffer.WriteString("&gt;")
		case '"':
			buffer.WriteString("&quot;")
		case '\'':
			buffer.WriteString("&apos;")
		default:
			if legalXMLChar(r) {
				buffer.WriteRune(r)
			}
		}
	}

	return buffer.String()
}

// legalXMLChar keeps tab, newline and carriage return, and drops other
// control characters and the non-characters U+FFFE and U+FFFF.
func legalXMLChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case unicode.IsControl(r), r >= 0xD800 && r <= 0xDFFF, r == 0xFFFE, r == 0xFFFF:
		return false
	default:
		return r <= unicode.MaxRune
	}
}
