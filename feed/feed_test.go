package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"testing"

	apperrors "github.com/kbukum/tsengine/errors"
)

type tick struct {
	Symbol string
	Price  float64
}

func parseTick(record []string) (tick, error) {
	if len(record) != 2 {
		return tick{}, fmt.Errorf("want 2 fields, got %d", len(record))
	}
	price, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		return tick{}, err
	}
	return tick{Symbol: record[0], Price: price}, nil
}

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestFromSlice_Collect(t *testing.T) {
	got, err := Collect(context.Background(), FromSlice([]int{1, 2, 3}))
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{1, 2, 3}; !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFromSlice_Empty(t *testing.T) {
	it := FromSlice[int](nil)
	_, ok, err := it.Next(context.Background())
	if err != nil || ok {
		t.Fatalf("Next on empty slice = ok %v, err %v", ok, err)
	}
}

func TestFromChannel(t *testing.T) {
	ch := make(chan int, 3)
	ch <- 4
	ch <- 5
	close(ch)

	got, err := Collect(context.Background(), FromChannel(ch))
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{4, 5}; !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFromChannel_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := FromChannel(make(chan int)).Next(ctx)
	if ok || !errors.Is(err, context.Canceled) {
		t.Errorf("Next = ok %v, err %v; want context.Canceled", ok, err)
	}
}

func TestFromFunc(t *testing.T) {
	n := 0
	closer := &closeCounter{}
	it := FromFunc(func(context.Context) (int, bool, error) {
		if n == 3 {
			return 0, false, nil
		}
		n++
		return n * 10, true, nil
	}, closer.Close)

	got, err := Collect(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{10, 20, 30}; !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if closer.closed != 1 {
		t.Errorf("closer called %d times, want 1", closer.closed)
	}
}

func TestFromFunc_NilCloser(t *testing.T) {
	it := FromFunc(func(context.Context) (int, bool, error) { return 0, false, nil }, nil)
	if err := it.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}

func TestCollectStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	closer := &closeCounter{}
	n := 0
	it := FromFunc(func(context.Context) (int, bool, error) {
		n++
		if n == 3 {
			return 0, false, boom
		}
		return n, true, nil
	}, closer.Close)

	got, err := Collect(context.Background(), it)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if want := []int{1, 2}; !slices.Equal(got, want) {
		t.Errorf("got %v before the error, want %v", got, want)
	}
	if closer.closed != 1 {
		t.Errorf("closer called %d times, want 1", closer.closed)
	}
}

func TestCSV(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  []CSVOption
		want  []tick
	}{
		{
			name:  "with header",
			input: "symbol,price\nAAA,1.5\nBBB,2\n",
			opts:  []CSVOption{WithHeader()},
			want:  []tick{{"AAA", 1.5}, {"BBB", 2}},
		},
		{
			name:  "no header",
			input: "AAA,3\n",
			want:  []tick{{"AAA", 3}},
		},
		{
			name:  "semicolon delimited",
			input: "AAA; 4.25\n",
			opts:  []CSVOption{WithComma(';')},
			want:  []tick{{"AAA", 4.25}},
		},
		{
			name:  "header only",
			input: "symbol,price\n",
			opts:  []CSVOption{WithHeader()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Collect(context.Background(), CSV(strings.NewReader(tt.input), parseTick, tt.opts...))
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("record %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCSV_ParseMayKeepCopies(t *testing.T) {
	keep := func(record []string) ([]string, error) { return slices.Clone(record), nil }
	got, err := Collect(context.Background(), CSV(strings.NewReader("a,1\nb,2\n"), keep))
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"a", "1"}, {"b", "2"}}
	if !slices.EqualFunc(got, want, slices.Equal[[]string]) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCSV_ParseError(t *testing.T) {
	it := CSV(strings.NewReader("AAA,1\nBBB,oops\nCCC,3\n"), parseTick)
	got, err := Collect(context.Background(), it)
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q does not name line 2", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d records before the error, want 1", len(got))
	}

	_, ok, err := it.Next(context.Background())
	if ok || err != nil {
		t.Errorf("Next after failure = ok %v, err %v; want exhausted", ok, err)
	}
}

func TestCSV_MalformedRecord(t *testing.T) {
	_, err := Collect(context.Background(), CSV(strings.NewReader("AAA,1\nBBB\n"), parseTick))
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("err = %v, want INVALID_INPUT for a short record", err)
	}
}

func TestCSV_CloserCalled(t *testing.T) {
	closer := &closeCounter{}
	it := CSV(strings.NewReader("AAA,1\n"), parseTick, WithCloser(closer))
	if _, err := Collect(context.Background(), it); err != nil {
		t.Fatal(err)
	}
	if closer.closed != 1 {
		t.Errorf("closer called %d times, want 1", closer.closed)
	}
}
