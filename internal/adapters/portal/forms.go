package portal

import (
    "io"
    "net/url"
    "strings"

    "golang.org/x/net/html"
)

// form is one <form> of a portal page with its submit target and default values.
type form struct {
    Action *url.URL
    Method string
    Values url.Values
    Inputs []input
}

type input struct {
    Name         string
    Type         string
    Autocomplete string
}

func (f form) has(match func(input) bool) (input, bool) {
    for _, in := range f.Inputs {
        if match(in) {
            return in, true
        }
    }
    return input{}, false
}

func isPassword(in input) bool { return in.Type == "password" }

func isUser(in input) bool {
    if in.Type != "text" && in.Type != "email" && in.Type != "" {
        return false
    }
    n := strings.ToLower(in.Name)
    for _, k := range []string{"user", "login", "cpf", "username", "email"} {
        if strings.Contains(n, k) {
            return true
        }
    }
    return false
}

func isCode(in input) bool {
    if in.Autocomplete == "one-time-code" {
        return true
    }
    n := strings.ToLower(in.Name)
    if in.Type == "hidden" || (in.Type == "password" && !strings.Contains(n, "otp")) {
        return false
    }
    for _, k := range []string{"otp", "totp", "token", "codigo", "code"} {
        if strings.Contains(n, k) {
            return true
        }
    }
    return false
}

// parseForms returns every form of an HTML page, resolving actions against base.
func parseForms(r io.Reader, base *url.URL) ([]form, error) {
    doc, err := html.Parse(r)
    if err != nil {
        return nil, err
    }
    var (
        forms []form
        cur   *form
        walk  func(*html.Node)
    )
    walk = func(n *html.Node) {
        if n.Type == html.ElementNode {
            switch n.Data {
            case "form":
                f := form{Action: base, Method: "POST", Values: url.Values{}}
                if a := attr(n, "action"); a != "" {
                    if u, err := base.Parse(a); err == nil {
                        f.Action = u
                    }
                }
                if m := attr(n, "method"); m != "" {
                    f.Method = strings.ToUpper(m)
                }
                prev := cur
                cur = &f
                for c := n.FirstChild; c != nil; c = c.NextSibling {
                    walk(c)
                }
                forms = append(forms, f)
                cur = prev
                return
            case "input":
                if cur != nil {
                    in := input{
                        Name:         attr(n, "name"),
                        Type:         strings.ToLower(attr(n, "type")),
                        Autocomplete: strings.ToLower(attr(n, "autocomplete")),
                    }
                    if in.Name != "" {
                        cur.Inputs = append(cur.Inputs, in)
                        if in.Type != "submit" && in.Type != "button" {
                            cur.Values.Set(in.Name, attr(n, "value"))
                        }
                    }
                }
            }
        }
        for c := n.FirstChild; c != nil; c = c.NextSibling {
            walk(c)
        }
    }
    walk(doc)
    return forms, nil
}

func attr(n *html.Node, key string) string {
    for _, a := range n.Attr {
        if strings.EqualFold(a.Key, key) {
            return a.Val
        }
    }
    return ""
}

// pageKind classifies what a login step landed on.
type pageKind int

const (
    pageOther pageKind = iota
    pageLogin
    pageSecondFactor
)

func classify(forms []form) (pageKind, form) {
    for _, f := range forms {
        if _, ok := f.has(isCode); ok {
            if _, pw := f.has(isPassword); !pw {
                return pageSecondFactor, f
            }
        }
    }
    for _, f := range forms {
        if _, ok := f.has(isPassword); ok {
            return pageLogin, f
        }
    }
    return pageOther, form{}
}
