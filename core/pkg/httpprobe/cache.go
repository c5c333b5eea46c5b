package httpprobe

import (
	"encoding/json"
	"net/http"
)

func encodeCached(r Response) (string, error) {
	env := cachedEnvelope{
		Success:     r.Success,
		Code:        r.Code,
		StatusLine:  r.StatusLine,
		FinalURL:    r.FinalURL,
		ContentType: r.ContentType,
		Body:        r.Body,
	}
	if r.Header != nil {
		env.Header = map[string][]string(r.Header)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeCached(content string) (Response, error) {
	var env cachedEnvelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return Response{}, err
	}
	return Response{
		Success:     env.Success,
		Code:        env.Code,
		StatusLine:  env.StatusLine,
		FinalURL:    env.FinalURL,
		ContentType: env.ContentType,
		Header:      http.Header(env.Header),
		Body:        env.Body,
	}, nil
}
