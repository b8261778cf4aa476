package web

import (
	"golang.org/x/net/html"
)

// Attr returns the value of the attribute with the given key, or the empty
// string if the node lacks it.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// ForEachNode applies a function to the given node and each of its
// descendants, depth first. It stops at the first error and returns it.
func ForEachNode(node *html.Node, fn func(n *html.Node) error) error {
	err := fn(node)
	if err != nil {
		return err
	}

	for c := node.FirstChild; c != nil; c = c.NextSibling {
		err := ForEachNode(c, fn)
		if err != nil {
			return err
		}
	}

	return nil
}

// ForEachLink applies a function to each `a href` element in the given html
// node and its descendants.
func ForEachLink(node *html.Node, fn func(n *html.Node) error) error {
	return ForEachNode(node, func(n *html.Node) error {
		if n.Type == html.ElementNode && n.Data == "a" && Attr(n, "href") != "" {
			return fn(n)
		}
		return nil
	})
}

// NodesWithDataVal returns a slice of all descendant nodes whose "data" field
// has the given value.
func NodesWithDataVal(node *html.Node, dataName string) []*html.Node {
	var nodes []*html.Node

	ForEachNode(node, func(n *html.Node) error {
		if n.Type == html.ElementNode && n.Data == dataName {
			nodes = append(nodes, n)
		}
		return nil
	})

	return nodes
}

// EmbeddedImageURLs returns the src of every img element in the given html
// document, as written.
func EmbeddedImageURLs(doc *html.Node) []string {
	var urls []string
	for _, n := range NodesWithDataVal(doc, "img") {
		if src := Attr(n, "src"); src != "" {
			urls = append(urls, src)
		}
	}

	return urls
}
