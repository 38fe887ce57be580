package merge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fromJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestMergeEmptyDeltaIsNoOp(t *testing.T) {
	base := fromJSON(t, `{"a":1,"b":{"c":[1,2,3]}}`)
	want := fromJSON(t, `{"a":1,"b":{"c":[1,2,3]}}`)

	got := Merge(base, map[string]any{})

	assert.Equal(t, want, got)
}

func TestMergeIntoNilBase(t *testing.T) {
	got := Merge(nil, fromJSON(t, `{"a":1}`))

	assert.Equal(t, fromJSON(t, `{"a":1}`), got)
}

func TestMergeIntroducesNewKeys(t *testing.T) {
	base := fromJSON(t, `{"a":1}`)

	got := Merge(base, fromJSON(t, `{"b":2}`))

	assert.Equal(t, fromJSON(t, `{"a":1,"b":2}`), got)
}

func TestMergeRecursesIntoNestedMaps(t *testing.T) {
	base := fromJSON(t, `{"Lines":{"44":{"Position":"1","GapToLeader":""}}}`)
	delta := fromJSON(t, `{"Lines":{"44":{"GapToLeader":"+1.2"}}}`)

	got := Merge(base, delta)

	want := fromJSON(t, `{"Lines":{"44":{"Position":"1","GapToLeader":"+1.2"}}}`)
	assert.Equal(t, want, got)
}

func TestMergeNeverDropsBaseOnlyKeys(t *testing.T) {
	base := fromJSON(t, `{"keep":true,"nest":{"keep":1,"change":1}}`)

	got := Merge(base, fromJSON(t, `{"nest":{"change":2}}`))

	want := fromJSON(t, `{"keep":true,"nest":{"keep":1,"change":2}}`)
	assert.Equal(t, want, got)
}

func TestMergeIndexPatchReplacesSingleElement(t *testing.T) {
	base := fromJSON(t, `{"field":["A","B","C"]}`)
	delta := fromJSON(t, `{"field":{"1":"X"}}`)

	got := Merge(base, delta)

	want := fromJSON(t, `{"field":["A","X","C"]}`)
	assert.Equal(t, want, got)
}

func TestMergeIndexPatchMergesElementMaps(t *testing.T) {
	base := fromJSON(t, `{"Stints":[{"Compound":"SOFT","Laps":3}]}`)
	delta := fromJSON(t, `{"Stints":{"0":{"Laps":4}}}`)

	got := Merge(base, delta)

	want := fromJSON(t, `{"Stints":[{"Compound":"SOFT","Laps":4}]}`)
	assert.Equal(t, want, got)
}

func TestMergeIndexPatchAppendsBeyondBounds(t *testing.T) {
	base := fromJSON(t, `{"Stints":[{"Compound":"SOFT"}]}`)
	delta := fromJSON(t, `{"Stints":{"1":{"Compound":"HARD"}}}`)

	got := Merge(base, delta)

	want := fromJSON(t, `{"Stints":[{"Compound":"SOFT"},{"Compound":"HARD"}]}`)
	assert.Equal(t, want, got)
}

func TestMergeIndexPatchDeletionPass(t *testing.T) {
	base := fromJSON(t, `{"field":["A","B","C"]}`)
	delta := fromJSON(t, `{"field":{"_deleted":["1"],"2":"Z"}}`)

	got := Merge(base, delta)

	// Index 1 removed before the patch applies; survivors keep their
	// original index order.
	want := fromJSON(t, `{"field":["A","Z"]}`)
	assert.Equal(t, want, got)
}

func TestMergeWholesaleListReplacement(t *testing.T) {
	base := fromJSON(t, `{"field":["A","B","C"]}`)
	delta := fromJSON(t, `{"field":["X"]}`)

	got := Merge(base, delta)

	assert.Equal(t, fromJSON(t, `{"field":["X"]}`), got)
}

func TestMergeNonIndexMapOverList(t *testing.T) {
	// Map keys that are not integer strings do not address indices; the
	// shapes mismatch and the delta wins wholesale.
	base := fromJSON(t, `{"field":["A","B"]}`)
	delta := fromJSON(t, `{"field":{"name":"X"}}`)

	got := Merge(base, delta)

	assert.Equal(t, fromJSON(t, `{"field":{"name":"X"}}`), got)
}

func TestMergeScalarDeltaIsIdempotent(t *testing.T) {
	delta := fromJSON(t, `{"a":{"b":"v"}}`)

	once := Merge(fromJSON(t, `{"a":{"b":"old"},"c":1}`), delta)
	twice := Merge(once, fromJSON(t, `{"a":{"b":"v"}}`))

	assert.Equal(t, fromJSON(t, `{"a":{"b":"v"},"c":1}`), twice)
}

func TestMergeLaterDeltaWins(t *testing.T) {
	base := fromJSON(t, `{"a":1}`)

	Merge(base, fromJSON(t, `{"a":2}`))
	got := Merge(base, fromJSON(t, `{"a":3}`))

	assert.Equal(t, fromJSON(t, `{"a":3}`), got)
}
