// Package parser pulls JSON payloads out of noisy CLI output.
//
// Vault CLIs print banners, progress lines and prompts around the JSON they
// are asked for, and some of that noise contains brackets of its own
// ("Decrypted [12] record(s)"). ExtractJSON finds the payload of the
// requested Kind and returns it as raw text:
//
//	raw, err := parser.ExtractJSON(out, parser.KindArray)
//	if errors.Is(err, parser.ErrNoJSONFound) {
//	    // the command printed no records
//	}
//
// ExtractInto does the same and unmarshals the result:
//
//	var records []Record
//	err := parser.ExtractInto(out, parser.KindArray, &records)
package parser
