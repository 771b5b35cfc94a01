package util

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var Client *http.Client = &http.Client{
	Timeout: time.Second * 120,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     false,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   100,
		Proxy:                 http.ProxyFromEnvironment,
	},
}

func Get(ctx context.Context, url string) (resp *http.Response, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return Client.Do(req)
}

// GetJSON 非2xx的响应直接返回错误
func GetJSON(ctx context.Context, url string, data interface{}) error {
	resp, err := Get(ctx, url)
	if err != nil {
		return errors.Wrapf(err, "get url %s", url)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "ReadAll")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("get url %s: unexpected status %s", url, resp.Status)
	}
	err = json.Unmarshal(respBody, data)
	if err != nil {
		log.Debugf("GetJSON url <%s> content:\n %s", url, respBody)
		return errors.Wrap(err, "Unmarshal")
	}
	return nil
}

func DownloadFile(ctx context.Context, filePath, fileURL string) error {
	resp, err := Get(ctx, fileURL)
	if err != nil {
		return errors.Wrap(err, "Get")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("download %s: unexpected status %s", fileURL, resp.Status)
	}
	out, err := os.Create(filePath)
	if err != nil {
		return errors.Wrap(err, "Create")
	}
	defer out.Close()
	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return errors.Wrapf(err, "Copy %d", n)
	}
	return nil
}
