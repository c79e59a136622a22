// internal/browser/document.go
package browser

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/formgate/internal/auth"
)

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escapes, so a value
// holding both quote kinds is assembled with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts)-1)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func xpathByID(id string) string {
	return "//*[@id=" + xpathLiteral(id) + "]"
}

func xpathByIDOrName(name string) string {
	lit := xpathLiteral(name)
	return "//*[@id=" + lit + " or @name=" + lit + "]"
}

// document is the page currently loaded in a session's tab.
type document struct {
	session *Session
}

func (d *document) query(ctx context.Context, xpath string) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	err := d.session.run(ctx, chromedp.Nodes(xpath, &nodes, chromedp.BySearch, chromedp.AtLeast(0)))
	return nodes, err
}

func (d *document) ElementByID(ctx context.Context, id string) (auth.Element, error) {
	nodes, err := d.query(ctx, xpathByID(id))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, auth.ErrElementNotFound
	}
	return &element{session: d.session, node: nodes[0]}, nil
}

func (d *document) ElementsByIDOrName(ctx context.Context, name string) ([]auth.Element, error) {
	nodes, err := d.query(ctx, xpathByIDOrName(name))
	if err != nil {
		return nil, err
	}
	elements := make([]auth.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &element{session: d.session, node: n})
	}
	return elements, nil
}

// element is a DOM node addressed by its CDP node id.
type element struct {
	session *Session
	node    *cdp.Node
}

func (e *element) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

// Type focuses the element and sends one key event per rune.
func (e *element) Type(ctx context.Context, text string) error {
	return e.session.run(ctx, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID))
}

// Click dispatches a mouse click and waits for the resulting navigation to settle.
func (e *element) Click(ctx context.Context) (auth.Document, error) {
	if err := e.session.step(ctx, chromedp.Click(e.ids(), chromedp.ByNodeID)); err != nil {
		return nil, err
	}
	return &document{session: e.session}, nil
}
