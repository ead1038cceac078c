package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrTooLarge = errors.New("file exceeds size limit")

// DownloadFile returns the byte content of a file on a provided URL. Bodies
// larger than maxBytes are rejected; maxBytes <= 0 disables the limit.
func DownloadFile(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		err = fmt.Errorf("error creating request %w", err)
		log.Error().Err(err).Str("url", url).Send()
		return nil, err
	}

	client := &http.Client{}
	res, err := client.Do(req)
	if err != nil {
		err = fmt.Errorf("error executing request %w", err)
		log.Error().Err(err).Str("url", url).Send()
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected status code on download: %d", res.StatusCode)
		log.Error().Err(err).Str("url", url).Send()
		return nil, err
	}

	buf, err := readLimited(res.Body, maxBytes)
	if err != nil {
		log.Error().Err(err).Str("url", url).Send()
		return nil, err
	}

	log.Debug().Int("bytes", len(buf)).Str("url", url).Msg("downloaded file")

	return buf, nil
}

// ReadSource loads ref from the local filesystem, or over HTTP when it is an
// http(s) URL.
func ReadSource(ctx context.Context, ref string, maxBytes int64) ([]byte, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return DownloadFile(ctx, ref, maxBytes)
	}

	f, err := os.Open(ref)
	if err != nil {
		return nil, fmt.Errorf("error opening file %w", err)
	}
	defer f.Close()

	return readLimited(f, maxBytes)
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		buf, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("error reading response %w", err)
		}
		return buf, nil
	}

	buf, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("error reading response %w", err)
	}
	if int64(len(buf)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}

	return buf, nil
}
