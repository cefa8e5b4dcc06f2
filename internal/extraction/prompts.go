package extraction

import (
	"fmt"
	"strings"
)

// receiptSchema is the JSON shape the model must return for a receipt.
const receiptSchema = `{
  "amount": number,
  "date": "YYYY-MM-DD",
  "reference": "string",
  "description": "string",
  "sender_name": "string",
  "bank_name": "string",
  "beneficiary_name": "string",
  "beneficiary_account": "string",
  "currency": "string",
  "is_valid_receipt": boolean,
  "is_correct_beneficiary": boolean
}`

func buildReceiptPrompt(beneficiaryName string) string {
	return fmt.Sprintf(`Examine this bank payment receipt image (comprobante de pago o transferencia).

Extract the following fields exactly as they appear:
- amount: the transferred amount as a number, no currency symbols
- date: the transaction date in YYYY-MM-DD format
- reference: the transaction reference or folio number
- description: the concept or description line if present
- sender_name: the name of the person who sent the payment
- bank_name: the issuing bank
- beneficiary_name: the account holder who received the payment
- beneficiary_account: the destination account or CLABE if visible
- currency: the ISO currency code if visible, otherwise ""

Then judge:
- is_valid_receipt: true only if the image is actually a bank payment
  receipt or transfer confirmation with a legible amount and date
- is_correct_beneficiary: true only if the beneficiary matches "%s"
  (allow accents, casing and abbreviation differences)

If a field is not visible use "" or 0. Do not guess values.

Return a JSON object with exactly this structure:
%s`, beneficiaryName, receiptSchema)
}

func buildStatementPrompt(headers []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString(`You are reading rows from a bank account statement spreadsheet.
The header row describes the columns. Classify every row that is a CREDIT
movement into the account: incoming transfers (transferencia, SPEI recibido),
teller deposits (depósito en ventanilla), ATM deposits (depósito en cajero)
and credit notes (abono, nota de crédito). EXCLUDE debits, charges, fees,
withdrawals and card purchases.

For each credit row return:
- row: the zero-based index of the row in the input
- date: the movement date in YYYY-MM-DD format
- amount: the credited amount EXACTLY as written in the cell, as a string,
  keeping the original thousand/decimal separators
- description: the movement description or concept
- reference: the reference/folio, "" if none
- sender_name: the originator name if identifiable, "" otherwise
- bank_name: the originating bank if identifiable, "" otherwise

Return a JSON object: {"credits": [ ... ]}. Rows that are not credits are
simply omitted.

HEADERS: `)
	sb.WriteString(strings.Join(headers, " | "))
	sb.WriteString("\nROWS:\n")
	for i, row := range rows {
		fmt.Fprintf(&sb, "%d: %s\n", i, strings.Join(row, " | "))
	}
	return sb.String()
}
