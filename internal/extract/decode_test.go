package extract

import (
	"testing"

	"quickestimate/internal"
)

func TestDecodeRows(t *testing.T) {
	patches, err := DecodeRows([]byte("```json\n{\"extractedRows\":[{\"sizeFt\":12,\"pcs\":3,\"rate\":95.5}]}\n```"), internal.SourceImage)
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 1 || patches[0].Rate.String() != "95.5" || patches[0].Source != internal.SourceImage {
		t.Fatalf("patches=%+v", patches)
	}
}

func TestDecodeRowsRejects(t *testing.T) {
	cases := map[string]string{
		"missing rows":   `{}`,
		"rows not array": `{"extractedRows":{}}`,
		"null row":       `{"extractedRows":[null]}`,
		"string number":  `{"extractedRows":[{"sizeFt":"8","pcs":1,"rate":1}]}`,
		"null field":     `{"extractedRows":[{"sizeFt":8,"pcs":null,"rate":1}]}`,
		"negative":       `{"extractedRows":[{"sizeFt":8,"pcs":1,"rate":-1}]}`,
		"missing rate":   `{"extractedRows":[{"sizeFt":8,"pcs":1}]}`,
		"null rows":      `{"extractedRows":null}`,
		"fractional pcs": `{"extractedRows":[{"sizeFt":8,"pcs":4.7,"rate":1}]}`,
		"huge pcs":       `{"extractedRows":[{"sizeFt":8,"pcs":18446744073709551620,"rate":1}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			patches, err := DecodeRows([]byte(body), internal.SourceImage)
			if err == nil || patches != nil {
				t.Fatalf("patches=%+v err=%v", patches, err)
			}
			if KindOf(err) != KindSchema {
				t.Fatalf("kind=%s", KindOf(err))
			}
		})
	}
	if _, err := DecodeRows([]byte(`[`), internal.SourceImage); KindOf(err) != KindDecode {
		t.Fatalf("garbage err=%v", err)
	}
}
