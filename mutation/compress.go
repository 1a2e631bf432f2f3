package mutation

// Compress folds runs of writes that cancel into each other:
//   - consecutive attr writes on the same (xpath, name) keep the last value
//     and the first old value
//   - an attr write followed by attr_del on the same (xpath, name) keeps the
//     attr_del with the first old value
//
// insert and remove are never folded.
func Compress(records []Record) []Record {
	if len(records) <= 1 {
		return records
	}

	result := make([]Record, 0, len(records))
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec.Op != OpAttr {
			result = append(result, rec)
			continue
		}

		firstOld := rec.OldValue
		j := i + 1
		for j < len(records) &&
			(records[j].Op == OpAttr || records[j].Op == OpAttrDel) &&
			records[j].XPath == rec.XPath &&
			records[j].Name == rec.Name {
			rec = records[j]
			j++
			if rec.Op == OpAttrDel {
				break
			}
		}
		rec.OldValue = firstOld
		result = append(result, rec)
		i = j - 1
	}
	return result
}
