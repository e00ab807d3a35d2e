package metadata

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-etl-service/internal/config"
	"github.com/couchcryptid/air-quality-etl-service/internal/domain"
)

func writeCSV(t *testing.T, content string) *Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cities.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg := &config.Config{MetadataPath: path}
	return NewReader(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReader_Load(t *testing.T) {
	r := writeCSV(t, `id,city_name,region_name,koatuu,katottg
1,Kyiv,Kyiv Oblast,8000000000,UA80000000000093317
2,Lviv,Lviv Oblast,4610100000,UA46060250010015970
`)

	cities, err := r.Load()
	require.NoError(t, err)
	require.Len(t, cities, 2)

	assert.Equal(t, domain.CityMeta{
		CityID:     1,
		CityName:   "Kyiv",
		RegionName: "Kyiv Oblast",
		Koatuu:     "8000000000",
		Katottg:    "UA80000000000093317",
	}, cities[1])
	assert.Equal(t, "Lviv", cities[2].CityName)
}

func TestReader_HeaderCaseAndBOM(t *testing.T) {
	r := writeCSV(t, "\uFEFFID,City_Name,Region_Name,KOATUU,KATOTTG\n7,Odesa,Odesa Oblast,5110100000,UA51100270010063857\n")

	cities, err := r.Load()
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "Odesa", cities[7].CityName)
}

func TestReader_CityIDColumnAlias(t *testing.T) {
	r := writeCSV(t, `city_id,city_name,region_name,koatuu,katottg
3,Dnipro,Dnipropetrovsk Oblast,1210100000,UA12020270010068076
`)

	cities, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, "Dnipro", cities[3].CityName)
}

func TestReader_MissingIDColumn(t *testing.T) {
	r := writeCSV(t, `name,city_name,region_name,koatuu,katottg
1,Kyiv,Kyiv Oblast,,
`)

	_, err := r.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingColumns)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "id column")
}

func TestReader_MissingMetadataColumns(t *testing.T) {
	r := writeCSV(t, `id,city_name
1,Kyiv
`)

	_, err := r.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingColumns)
	assert.Contains(t, err.Error(), "region_name")
	assert.Contains(t, err.Error(), "koatuu")
	assert.Contains(t, err.Error(), "katottg")
}

func TestReader_SkipsUnparseableIDs(t *testing.T) {
	r := writeCSV(t, `id,city_name,region_name,koatuu,katottg
1,Kyiv,Kyiv Oblast,,
abc,Ghost,Nowhere Oblast,,
2,Lviv,Lviv Oblast,,
`)

	cities, err := r.Load()
	require.NoError(t, err)
	require.Len(t, cities, 2)
	assert.Contains(t, cities, int64(1))
	assert.Contains(t, cities, int64(2))
}

func TestReader_DuplicateIDKeepsFirst(t *testing.T) {
	r := writeCSV(t, `id,city_name,region_name,koatuu,katottg
1,Kyiv,Kyiv Oblast,,
1,Kyiv-Duplicate,Kyiv Oblast,,
`)

	cities, err := r.Load()
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "Kyiv", cities[1].CityName)
}

func TestReader_MissingFile(t *testing.T) {
	cfg := &config.Config{MetadataPath: filepath.Join(t.TempDir(), "absent.csv")}
	r := NewReader(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := r.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
