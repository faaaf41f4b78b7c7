package gqlapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/trezcool/prsonline/core/media"
)

const dateLayout = "2006-01-02"

// Date is a calendar day, serialized as yyyy-mm-dd. RFC 3339 timestamps are accepted as input.
type Date struct {
	time.Time
}

func (Date) ImplementsGraphQLType(name string) bool {
	return name == "Date"
}

func (d *Date) UnmarshalGraphQL(input interface{}) error {
	switch v := input.(type) {
	case string:
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			if t, err = time.Parse(time.RFC3339, v); err != nil {
				return fmt.Errorf("invalid date %q", v)
			}
		}
		y, m, day := t.Date()
		d.Time = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
		return nil
	case time.Time:
		d.Time = v
		return nil
	default:
		return fmt.Errorf("wrong type for Date: %T", v)
	}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

// Upload is a file of a multipart request; the HTTP handler puts a media.Upload in the request variables.
type Upload struct {
	media.Upload
}

func (Upload) ImplementsGraphQLType(name string) bool {
	return name == "Upload"
}

func (u *Upload) UnmarshalGraphQL(input interface{}) error {
	switch v := input.(type) {
	case media.Upload:
		u.Upload = v
	case *media.Upload:
		u.Upload = *v
	default:
		return fmt.Errorf("wrong type for Upload: %T", v)
	}
	return nil
}
