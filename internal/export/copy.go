package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const copyNull = `\N`

var copyEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\t", `\t`,
	"\n", `\n`,
	"\r", `\r`,
)

// copyWriter renders rows in PostgreSQL COPY text format.
type copyWriter struct {
	out   *bufio.Writer
	rows  int64
	bytes int64
}

func newCopyWriter(w io.Writer) *copyWriter {
	return &copyWriter{out: bufio.NewWriter(w)}
}

func (c *copyWriter) WriteRow(values []interface{}) error {
	var line strings.Builder
	for index, value := range values {
		if index > 0 {
			line.WriteByte('\t')
		}
		line.WriteString(formatCopyValue(value))
	}
	line.WriteByte('\n')
	written, err := c.out.WriteString(line.String())
	c.bytes += int64(written)
	if err != nil {
		return err
	}
	c.rows++
	return nil
}

func (c *copyWriter) Flush() error {
	return c.out.Flush()
}

// FormatTimestamp renders t the way PostgreSQL prints a UTC timestamptz.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.999999") + "+00"
}

func formatCopyValue(value interface{}) string {
	switch typed := value.(type) {
	case nil:
		return copyNull
	case []byte:
		if typed == nil {
			return copyNull
		}
		return copyEscaper.Replace(string(typed))
	case string:
		return copyEscaper.Replace(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case int:
		return strconv.Itoa(typed)
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'g', -1, 32)
	case bool:
		if typed {
			return "t"
		}
		return "f"
	case time.Time:
		return FormatTimestamp(typed)
	default:
		return copyEscaper.Replace(fmt.Sprint(typed))
	}
}
