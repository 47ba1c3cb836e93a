package pipeline

import "testing"

func TestDetectEstimateSheet(t *testing.T) {
	cases := []struct {
		name        string
		subject     string
		text        string
		attachments []string
		want        bool
	}{
		{"photo", "sheet", "", []string{"IMG_1.JPG"}, true},
		{"typed rows", "", "size pcs rate\n8 4 120\n10 2 100", nil, true},
		{"bare numbers", "", "8 4 120\n10 2 100", nil, false},
		{"spreadsheet", "fwd", "", []string{"rates.xlsx"}, false},
		{"spreadsheet with subject", "estimate", "", []string{"rates.xlsx"}, true},
		{"newsletter", "Weekly news", "Hello there", []string{"logo.gif"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectEstimateSheet(tc.subject, tc.text, "", tc.attachments)
			if got.IsEstimate != tc.want {
				t.Fatalf("got %+v", got)
			}
		})
	}
}
