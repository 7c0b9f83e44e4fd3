package ai

// VoucherExtractionPrompt instructs the model to read a voucher photo into
// the canonical field shape. Output is untrusted and goes through full
// normalization and validation like any other channel.
const VoucherExtractionPrompt = `
You are reading a photo of a physical prepaid voucher card.

Extract the printed fields and return ONLY a JSON object, no prose:
{
  "serial_number": "the alphanumeric serial number (often labeled SN or S/N)",
  "voucher_number": "the numeric top-up code (often labeled VN or hidden under scratch foil)",
  "product_code": "the operator/product identifier if printed",
  "denomination": "the face value, digits only",
  "expiry_date": "YYYY-MM-DD if printed, else empty string",
  "confidence": 0.0
}

Rules:
- confidence is your overall reading certainty in [0,1].
- Use an empty string for any field you cannot read. Never guess digits.
- Do not wrap the JSON in markdown fences.
`
