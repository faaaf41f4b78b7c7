package echoapi

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	gqlapi "github.com/trezcool/prsonline/apps/api/graphql"
	"github.com/trezcool/prsonline/core/media"
)

const (
	maxUploadSize   = 10 << 20
	maxMemoryUpload = 2 << 20
)

type graphqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// graphql executes a GraphQL request; multipart requests follow the GraphQL multipart request spec
// (operations, map and one part per file).
func (s *Server) graphql(ctx echo.Context) error {
	var req graphqlRequest
	ct := ctx.Request().Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(ct, echo.MIMEApplicationJSON):
		if err := json.NewDecoder(ctx.Request().Body).Decode(&req); err != nil {
			return errBadRequest
		}
	case strings.HasPrefix(ct, echo.MIMEMultipartForm):
		files, err := s.decodeMultipart(ctx, &req)
		defer func() {
			closeAll(files)
			if form := ctx.Request().MultipartForm; form != nil {
				_ = form.RemoveAll()
			}
		}()
		if err != nil {
			return err
		}
	default:
		return errUnsupportedMedia
	}
	if req.Query == "" {
		return errBadRequest
	}

	c := gqlapi.WithSession(ctx.Request().Context(), session{ctx: ctx, auth: s.auth})
	resp := s.Schema.Exec(c, req.Query, req.OperationName, req.Variables)
	return ctx.JSON(http.StatusOK, resp)
}

func (s *Server) decodeMultipart(ctx echo.Context, req *graphqlRequest) ([]io.Closer, error) {
	r := ctx.Request()
	r.Body = http.MaxBytesReader(ctx.Response(), r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxMemoryUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errRequestTooLarge
		}
		return nil, errBadRequest
	}

	if err := json.Unmarshal([]byte(r.FormValue("operations")), req); err != nil {
		return nil, errBadRequest
	}
	var fileMap map[string][]string
	if err := json.Unmarshal([]byte(r.FormValue("map")), &fileMap); err != nil {
		return nil, errBadRequest
	}
	if req.Variables == nil {
		req.Variables = make(map[string]interface{})
	}

	var files []io.Closer
	for key, paths := range fileMap {
		headers := r.MultipartForm.File[key]
		if len(headers) == 0 {
			return files, errBadRequest
		}
		upload, f, err := openUpload(headers[0])
		if err != nil {
			return files, errors.Wrap(err, "opening uploaded file")
		}
		files = append(files, f)
		for _, path := range paths {
			if err := setVariable(req.Variables, path, upload); err != nil {
				return files, errBadRequest
			}
		}
	}
	return files, nil
}

func openUpload(fh *multipart.FileHeader) (media.Upload, multipart.File, error) {
	f, err := fh.Open()
	if err != nil {
		return media.Upload{}, nil, err
	}
	return media.Upload{
		Filename: fh.Filename,
		MimeType: fh.Header.Get(echo.HeaderContentType),
		Encoding: fh.Header.Get("Content-Transfer-Encoding"),
		Size:     fh.Size,
		File:     f,
	}, f, nil
}

// setVariable sets val at an object path such as "variables.file" or "variables.files.0".
func setVariable(vars map[string]interface{}, path string, val interface{}) error {
	parts := strings.Split(path, ".")
	if len(parts) < 2 || parts[0] != "variables" {
		return errors.Errorf("invalid path %q", path)
	}
	var cur interface{} = vars
	for i, part := range parts[1:] {
		last := i == len(parts)-2
		switch node := cur.(type) {
		case map[string]interface{}:
			if last {
				node[part] = val
				return nil
			}
			cur = node[part]
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return errors.Errorf("invalid index in path %q", path)
			}
			if last {
				node[idx] = val
				return nil
			}
			cur = node[idx]
		default:
			return errors.Errorf("invalid path %q", path)
		}
	}
	return nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
