package raster

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// 文档注释：ESRI ASCII 栅格读取（流向栅格 fdr.asc 的交换格式）
// 约束：
// - 头部支持 ncols/nrows/xllcorner|xllcenter/yllcorner|yllcenter/cellsize/nodata_value，大小写不敏感；
// - 数值按整数解析，带小数部分的值四舍五入（部分工具以浮点导出流向码）。
func ReadASCII(r io.Reader) (*IntGrid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<26)
	sc.Split(bufio.ScanWords)
	var g Grid
	nodata := NoData
	centerX, centerY := false, false
	var pending string
	for sc.Scan() {
		tok := sc.Text()
		key := strings.ToLower(tok)
		if !isHeaderKey(key) {
			pending = tok
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("ascii grid: missing value for %s", key)
		}
		val := sc.Text()
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("ascii grid: header %s: %w", key, err)
		}
		switch key {
		case "ncols":
			g.NCols = int(f)
		case "nrows":
			g.NRows = int(f)
		case "xllcorner":
			g.XLL = f
		case "xllcenter":
			g.XLL, centerX = f, true
		case "yllcorner":
			g.YLL = f
		case "yllcenter":
			g.YLL, centerY = f, true
		case "cellsize":
			g.CellSize = f
		case "nodata_value":
			nodata = int32(f)
		}
	}
	if centerX {
		g.XLL -= g.CellSize / 2
	}
	if centerY {
		g.YLL -= g.CellSize / 2
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	ig := &IntGrid{Grid: g, NoData: nodata, Data: make([]int32, g.NRows*g.NCols)}
	i := 0
	put := func(tok string) error {
		if i >= len(ig.Data) {
			return fmt.Errorf("ascii grid: more than %d values", len(ig.Data))
		}
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("ascii grid: value %d: %w", i, err)
		}
		ig.Data[i] = int32(math.Round(f))
		i++
		return nil
	}
	if pending != "" {
		if err := put(pending); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		if err := put(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if i != len(ig.Data) {
		return nil, fmt.Errorf("ascii grid: expected %d values, got %d", len(ig.Data), i)
	}
	return ig, nil
}

func isHeaderKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "xllcenter", "yllcorner", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

// WriteASCII：写出 ESRI ASCII 栅格（角点原点）
func WriteASCII(w io.Writer, ig *IntGrid) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\nxllcorner %s\nyllcorner %s\ncellsize %s\nNODATA_value %d\n",
		ig.NCols, ig.NRows,
		strconv.FormatFloat(ig.XLL, 'f', -1, 64),
		strconv.FormatFloat(ig.YLL, 'f', -1, 64),
		strconv.FormatFloat(ig.CellSize, 'f', -1, 64),
		ig.NoData)
	for r := 0; r < ig.NRows; r++ {
		for c := 0; c < ig.NCols; c++ {
			if c > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatInt(int64(ig.At(r, c)), 10))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
