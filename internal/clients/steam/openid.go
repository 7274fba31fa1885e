package steam

import (
	"bytes"
	"net/url"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

// openIDFields are the inputs of the Steam open-id consent form.
var openIDFields = []string{"action", "openid.mode", "openidparams", "nonce"}

// parseOpenIDParams extracts the consent form inputs from the page.
func parseOpenIDParams(page []byte) (url.Values, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, errors.Wrap(err, "parse openid page")
	}

	inputs := make(map[string]string)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" {
			var name, value string
			for _, a := range n.Attr {
				switch a.Key {
				case "name":
					name = a.Val
				case "value":
					value = a.Val
				}
			}
			if _, seen := inputs[name]; name != "" && !seen {
				inputs[name] = value
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	params := url.Values{}
	for _, field := range openIDFields {
		v, ok := inputs[field]
		if !ok {
			return nil, errors.Errorf("openid form has no %q input", field)
		}
		params.Set(field, v)
	}
	return params, nil
}
