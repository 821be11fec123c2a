package fontkit

import "encoding/binary"

// readOS2WeightClass 直接从 sfnt 表目录中读取 OS/2 表的 usWeightClass。
// x/image 的 sfnt 解析器不暴露 OS/2 表，这里按 OpenType 规范手工定位：
// 偏移 12 起每 16 字节一条表目录项（tag/checksum/offset/length），
// usWeightClass 位于 OS/2 表偏移 4 处。
func readOS2WeightClass(data []byte) (int, bool) {
	if len(data) < 12 {
		return 0, false
	}
	version := binary.BigEndian.Uint32(data[0:4])
	if version != 0x00010000 && version != 0x4f54544f { // 'OTTO'
		return 0, false
	}
	numTables := int(binary.BigEndian.Uint16(data[4:6]))
	if len(data) < 12+numTables*16 {
		return 0, false
	}
	for i := 0; i < numTables; i++ {
		rec := data[12+i*16 : 12+i*16+16]
		if string(rec[0:4]) != "OS/2" {
			continue
		}
		offset := binary.BigEndian.Uint32(rec[8:12])
		length := binary.BigEndian.Uint32(rec[12:16])
		if length < 6 || uint64(offset)+6 > uint64(len(data)) {
			return 0, false
		}
		w := int(binary.BigEndian.Uint16(data[offset+4 : offset+6]))
		if w < 1 || w > 1000 {
			return 0, false
		}
		return normalizeWeightClass(w), true
	}
	return 0, false
}

// normalizeWeightClass 把任意 usWeightClass 收敛到 {100..900} 的百位刻度。
func normalizeWeightClass(w int) int {
	if w < 100 {
		w = 100
	}
	if w > 900 {
		w = 900
	}
	return ((w + 50) / 100) * 100
}
