package llm

import "strings"

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// chatContent pulls the assistant text out of a completion payload. Content
// is usually a plain string, but some providers return a part array whose
// text chunks are joined with newlines.
func chatContent(payload map[string]any) (string, bool) {
	choices := asSlice(payload["choices"])
	if len(choices) == 0 {
		return "", false
	}
	message := asMap(asMap(choices[0])["message"])

	if s := asString(message["content"]); s != "" {
		return s, true
	}

	var chunks []string
	for _, part := range asSlice(message["content"]) {
		if text := asString(asMap(part)["text"]); text != "" {
			chunks = append(chunks, text)
		}
	}
	if len(chunks) > 0 {
		return strings.Join(chunks, "\n"), true
	}
	return "", false
}

// stripDataURL drops the "data:...;base64," prefix when present.
func stripDataURL(v string) string {
	if !strings.HasPrefix(v, "data:") {
		return v
	}
	if _, after, ok := strings.Cut(v, ","); ok {
		return after
	}
	return ""
}

// extractImage probes the known response shapes in order and returns either
// inline base64 data or a URL that still needs downloading:
//
//  1. choices[0].message.images[0].image_url.url
//  2. choices[0].message.content[] entries with type "image_url"
//  3. data[0].b64_json
//  4. data[0].url
func extractImage(payload map[string]any) (b64, fetchURL string) {
	choices := asSlice(payload["choices"])
	var message map[string]any
	if len(choices) > 0 {
		message = asMap(asMap(choices[0])["message"])
	}

	images := asSlice(message["images"])
	if len(images) > 0 {
		url := asString(asMap(asMap(images[0])["image_url"])["url"])
		if v := stripDataURL(url); v != "" {
			return v, ""
		}
	}

	for _, part := range asSlice(message["content"]) {
		rec := asMap(part)
		if asString(rec["type"]) != "image_url" {
			continue
		}
		url := asString(asMap(rec["image_url"])["url"])
		if v := stripDataURL(url); v != "" {
			return v, ""
		}
	}

	data := asSlice(payload["data"])
	var first map[string]any
	if len(data) > 0 {
		first = asMap(data[0])
	}
	if v := asString(first["b64_json"]); v != "" {
		return v, ""
	}
	if url := asString(first["url"]); url != "" {
		return "", url
	}
	return "", ""
}
