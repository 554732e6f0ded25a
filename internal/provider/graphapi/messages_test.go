package graphapi

import "testing"

func TestFolderTypeForWellKnownName(t *testing.T) {
	cases := []struct {
		folder graphFolder
		want   string
	}{
		{graphFolder{WellKnownName: "inbox"}, "inbox"},
		{graphFolder{WellKnownName: "deleteditems"}, "trash"},
		{graphFolder{DisplayName: "Sent Items"}, "sent"},
		{graphFolder{DisplayName: "Projects"}, "custom"},
	}
	for _, c := range cases {
		if got := folderTypeFor(c.folder); got != c.want {
			t.Errorf("folderTypeFor(%+v) = %q, want %q", c.folder, got, c.want)
		}
	}
}

func TestMergeCategoriesAddAndRemove(t *testing.T) {
	current := []string{"Important", "Follow Up"}
	got := mergeCategories(current, []string{"Urgent"}, []string{"Follow Up"})

	want := map[string]bool{"Important": true, "Urgent": true}
	if len(got) != len(want) {
		t.Fatalf("mergeCategories = %v, want %v entries", got, want)
	}
	for _, c := range got {
		if !want[c] {
			t.Errorf("unexpected category %q in result %v", c, got)
		}
	}
}

func TestMergeCategoriesRemoveWinsOverAdd(t *testing.T) {
	got := mergeCategories(nil, []string{"A"}, []string{"A"})
	if len(got) != 0 {
		t.Errorf("mergeCategories = %v, want empty (remove should win)", got)
	}
}

func TestAddressListExtractsAddresses(t *testing.T) {
	recipients := []graphRecipient{
		{EmailAddress: graphEmailAddress{Name: "A", Address: "a@example.com"}},
		{EmailAddress: graphEmailAddress{Name: "B", Address: "b@example.com"}},
	}
	got := addressList(recipients)
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Errorf("addressList = %v", got)
	}
}

func TestBodyTextAndHTMLDispatchesByContentType(t *testing.T) {
	text, html := bodyTextAndHTML(graphItemBody{ContentType: "text", Content: "hello"})
	if text != "hello" || html != "" {
		t.Errorf("text body: got text=%q html=%q", text, html)
	}

	text, html = bodyTextAndHTML(graphItemBody{ContentType: "html", Content: "<p>hi</p>"})
	if text != "" || html == "" {
		t.Errorf("html body: got text=%q html=%q", text, html)
	}
}

func TestMessageHeaderCaseInsensitive(t *testing.T) {
	headers := []graphHeader{{Name: "In-Reply-To", Value: "<abc@example.com>"}}
	if got := messageHeader(headers, "in-reply-to"); got != "<abc@example.com>" {
		t.Errorf("messageHeader = %q", got)
	}
}
