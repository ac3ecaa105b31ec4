package mapper

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/record"
	"github.com/koustreak/datastore/internal/schema"
)

type person struct {
	Id       int     `db:",pk,identity"`
	Name     string
	Salary   float64 `db:"SalaryColumn"`
	Active   bool
	Born     time.Time
	Nickname *string
	Scratch  string `db:"-"`
}

type account struct {
	Id     uuid.UUID `db:",pk"`
	Owner  sql.NullString
	Amount int32
}

type author struct {
	Id    int    `db:",pk"`
	Name  string
	Books []book `db:",ref"`
}

type book struct {
	Id       int     `db:",pk"`
	Title    string
	Author   *author `db:",ref"`
	AuthorId int
}

func (author) TableName() string { return "Author" }
func (book) TableName() string   { return "Book" }

type review struct {
	Id   int   `db:",pk"`
	Book *book `db:",ref"`
}

func newMapper() *Mapper {
	return New(schema.NewCatalog())
}

func TestToRecord_ColumnsInSchemaOrder(t *testing.T) {
	nick := "ozzy"
	p := person{Id: 7, Name: "Oscar", Salary: 15, Active: true, Nickname: &nick, Scratch: "ignored"}

	rec, err := newMapper().ToRecord(&p)
	require.NoError(t, err)

	assert.Equal(t, []string{"Id", "Name", "SalaryColumn", "Active", "Born", "Nickname"}, rec.Keys())
	assert.Equal(t, "Oscar", rec.Value("Name"))
	assert.Equal(t, 15.0, rec.Value("SalaryColumn"))
	assert.False(t, rec.Has("Scratch"))
}

func TestRoundTrip(t *testing.T) {
	m := newMapper()
	nick := "ozzy"
	in := person{
		Id:       25,
		Name:     "Oscar",
		Salary:   1200.5,
		Active:   true,
		Born:     time.Date(1990, 5, 17, 8, 30, 0, 0, time.UTC),
		Nickname: &nick,
	}

	rec, err := m.ToRecord(in)
	require.NoError(t, err)
	out, err := FromRecordWith[person](m, rec)
	require.NoError(t, err)

	assert.Equal(t, in, *out)
}

func TestFromRecord_ByFieldAndColumnName(t *testing.T) {
	rec := record.New(3)
	rec.Set("Salary", 10.0)
	rec.Set("Name", "Maria")
	rec.Set("Unknown", "skipped")

	p, err := FromRecordWith[person](newMapper(), rec)
	require.NoError(t, err)
	assert.Equal(t, 10.0, p.Salary)
	assert.Equal(t, "Maria", p.Name)

	rec = record.New(1)
	rec.Set("SalaryColumn", 11.0)
	p, err = FromRecordWith[person](newMapper(), rec)
	require.NoError(t, err)
	assert.Equal(t, 11.0, p.Salary)
}

func TestFromRecord_DriverValues(t *testing.T) {
	rec := record.FromColumns(
		[]string{"Id", "Name", "SalaryColumn", "Active", "Born", "Nickname"},
		[]any{int64(3), []byte("Ana"), "99.5", int64(1), "2024-01-02 03:04:05", nil},
	)

	p, err := FromRecordWith[person](newMapper(), rec)
	require.NoError(t, err)

	assert.Equal(t, 3, p.Id)
	assert.Equal(t, "Ana", p.Name)
	assert.Equal(t, 99.5, p.Salary)
	assert.True(t, p.Active)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), p.Born)
	assert.Nil(t, p.Nickname)
}

func TestFromRecord_ScannerFields(t *testing.T) {
	id := uuid.New()
	rec := record.FromColumns([]string{"Id", "Owner", "Amount"}, []any{id.String(), "bank", int64(40)})

	a, err := FromRecordWith[account](newMapper(), rec)
	require.NoError(t, err)

	assert.Equal(t, id, a.Id)
	assert.Equal(t, sql.NullString{String: "bank", Valid: true}, a.Owner)
	assert.Equal(t, int32(40), a.Amount)
}

func TestFromRecord_CoercionFailure(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"text into int", "Id", "not-a-number"},
		{"overflow", "Amount", int64(1) << 40},
		{"struct into float", "SalaryColumn", struct{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record.New(1)
			rec.Set(tt.key, tt.value)

			var err error
			if tt.key == "Amount" {
				_, err = FromRecordWith[account](newMapper(), rec)
			} else {
				_, err = FromRecordWith[person](newMapper(), rec)
			}
			require.Error(t, err)
			assert.True(t, errs.IsMapping(err))
		})
	}
}

func TestToRecord_References(t *testing.T) {
	m := newMapper()
	a := &author{Id: 4, Name: "Le Guin"}
	a.Books = []book{{Id: 1, Title: "The Dispossessed", Author: a}, {Id: 2, Title: "Lathe"}}

	rec, err := m.ToRecord(a)
	require.NoError(t, err)

	books := rec.Children("Books")
	require.Len(t, books, 2)
	assert.Equal(t, 4, books[0].Value("AuthorId"), "parent reference supplies the foreign key")
	assert.Equal(t, 0, books[1].Value("AuthorId"), "explicit foreign-key field is kept when the reference is nil")

	r, err := m.ToRecord(review{Id: 9, Book: &a.Books[0]})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Value("BookId"))

	r, err = m.ToRecord(review{Id: 9})
	require.NoError(t, err)
	v, ok := r.Get("BookId")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestFromRecord_Children(t *testing.T) {
	m := newMapper()
	rec := record.FromColumns([]string{"Id", "Name"}, []any{1, "Le Guin"})
	rec.Set("Books", []record.Record{
		record.FromColumns([]string{"Id", "Title"}, []any{10, "Lathe"}),
	})

	a, err := FromRecordWith[author](m, rec)
	require.NoError(t, err)
	require.Len(t, a.Books, 1)
	assert.Equal(t, "Lathe", a.Books[0].Title)
}

func TestFromRecordType(t *testing.T) {
	rec := record.FromColumns([]string{"Name"}, []any{"Oscar"})

	v, err := newMapper().FromRecordType(rec, reflect.TypeFor[person]())
	require.NoError(t, err)
	require.IsType(t, &person{}, v)
	assert.Equal(t, "Oscar", v.(*person).Name)
}

func TestKeyValuesAndCopyKeys(t *testing.T) {
	m := newMapper()
	src := person{Id: 42, Name: "source"}
	dst := person{Name: "target"}

	keys, err := m.KeyValues(src)
	require.NoError(t, err)
	assert.Equal(t, []string{"Id"}, keys.Keys())

	require.NoError(t, m.CopyKeys(&dst, &src))
	assert.Equal(t, 42, dst.Id)
	assert.Equal(t, "target", dst.Name)

	first, err := m.FirstKey(&src)
	require.NoError(t, err)
	assert.Equal(t, 42, first)

	err = m.CopyKeys(dst, src)
	assert.True(t, errs.IsMapping(err))
	err = m.CopyKeys(&dst, account{})
	assert.True(t, errs.IsMapping(err))
}

func TestToRecord_NilEntity(t *testing.T) {
	var p *person
	_, err := newMapper().ToRecord(p)
	assert.True(t, errs.IsMapping(err))

	_, err = newMapper().ToRecord(nil)
	assert.True(t, errs.IsMapping(err))
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		in   any
		to   reflect.Type
		want any
	}{
		{"nil to zero", nil, reflect.TypeFor[int](), 0},
		{"int64 to int", int64(5), reflect.TypeFor[int](), 5},
		{"int to bool", int64(0), reflect.TypeFor[bool](), false},
		{"string to bool", "true", reflect.TypeFor[bool](), true},
		{"bytes to string", []byte("x"), reflect.TypeFor[string](), "x"},
		{"int to string", 12, reflect.TypeFor[string](), "12"},
		{"float to int", 3.0, reflect.TypeFor[int](), 3},
		{"string to float", "2.5", reflect.TypeFor[float64](), 2.5},
		{"int to duration", int64(time.Second), reflect.TypeFor[time.Duration](), time.Second},
		{"clock to duration", "01:02:03.500", reflect.TypeFor[time.Duration](), time.Hour + 2*time.Minute + 3500*time.Millisecond},
		{"string to bytes", "ab", reflect.TypeFor[[]byte](), []byte("ab")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.in, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Interface())
		})
	}

	p, err := Convert(int64(3), reflect.TypeFor[*int]())
	require.NoError(t, err)
	assert.Equal(t, 3, *(p.Interface().(*int)))

	_, err = Convert(3.5, reflect.TypeFor[int]())
	assert.True(t, errs.IsMapping(err))

	overflows := []struct {
		name string
		in   any
		to   reflect.Type
	}{
		{"uint64 above int64", uint64(1<<63 + 5), reflect.TypeFor[int64]()},
		{"uint64 above int8", uint64(300), reflect.TypeFor[int8]()},
		{"float above int64", 1e19, reflect.TypeFor[int64]()},
		{"float above float32", 1e300, reflect.TypeFor[float32]()},
		{"text above float32", "-1e300", reflect.TypeFor[float32]()},
	}
	for _, tt := range overflows {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert(tt.in, tt.to)
			assert.True(t, errs.IsMapping(err), "got %v", err)
		})
	}

	f, err := Convert(1.5, reflect.TypeFor[float32]())
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f.Interface())
}
