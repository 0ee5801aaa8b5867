package streamclient

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ErrNoConversation is returned when a page embeds no conversation id.
var ErrNoConversation = errors.New("streamclient: page embeds no conversation id")

const (
	conversationMetaName = "conversation-id"
	conversationDataAttr = "data-conversation-id"
)

// DiscoverConversationID finds the conversation a page is showing, either
// from <meta name="conversation-id" content="..."> or from the first
// element carrying a data-conversation-id attribute. Meta tags win.
func DiscoverConversationID(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("streamclient: parse page: %w", err)
	}
	var fromMeta, fromAttr string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if fromMeta != "" {
			return
		}
		if n.Type == html.ElementNode {
			inspect(n, &fromMeta, &fromAttr)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	switch {
	case fromMeta != "":
		return fromMeta, nil
	case fromAttr != "":
		return fromAttr, nil
	default:
		return "", ErrNoConversation
	}
}

func inspect(n *html.Node, fromMeta, fromAttr *string) {
	var name, content string
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		value := strings.TrimSpace(attr.Val)
		switch key {
		case "name":
			name = value
		case "content":
			content = value
		case conversationDataAttr:
			if *fromAttr == "" && value != "" {
				*fromAttr = value
			}
		}
	}
	if n.Data == "meta" && strings.EqualFold(name, conversationMetaName) && content != "" {
		*fromMeta = content
	}
}
