// Package ws provides a web service client with a fluent request builder,
// a bounded connection pool and typed access to response bodies.
//
// This package is designed for use inside servers and tools and provides:
//   - A configurable client with functional options
//   - A fluent request builder with printf-style URL encoding
//   - Form, raw and multipart file bodies
//   - Response bodies as bytes, string, stream, XML document or JSON element
//   - Sessions that release every connection of a unit of work at once
//
// Basic Usage:
//
//	client, err := ws.NewClient(ws.WithTimeout(10 * time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.URLf("https://search.example.com/search?p=%s&b=%s", "gophers at work", "30").
//	    WithHeader("Accept", "text/html").
//	    Get(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if resp.Status() == 200 {
//	    html, _ := resp.String()
//	    fmt.Println(html)
//	}
//
// Feeds and other XML:
//
//	resp, err := client.URL("https://feeds.example.com/world/rss.xml").Get(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	doc, err := resp.XML()
//	for _, item := range doc.FindElements("//item/title") {
//	    fmt.Println(item.Text())
//	}
//
// File Upload:
//
//	resp, err := client.URL("https://upload.example.com/photos").
//	    WithFileParams(ws.FileParam{Path: "/tmp/cat.png", Name: "photo"}).
//	    WithParam("album", "pets").
//	    Post(ctx)
//
// Sessions:
//
// Responses hold a pooled connection until their body is consumed or they
// are released. Server code wraps its handlers with Client.Middleware; every
// response executed with the request context is then released when the
// handler returns, even if the handler never read it.
//
//	mux.Handle("/proxy", client.Middleware(handler))
//
// Thread Safety:
//
// Client and Session are safe for concurrent use. Request and Response
// values belong to the goroutine that created them.
package ws
