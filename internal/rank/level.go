// Package rank models the lobby's player level ids. A level id packs
// (cohort, major tier, minor tier) in fixed radix: id = cohort*10000 +
// major*100 + minor, cohort 1 for four-player and 2 for three-player modes.
// The top tier ("konten") displays and compares differently from the rest.
package rank

import (
	"fmt"
	"strconv"
)

const (
	// Konten 最高段主序号 主序号>=Konten-1即按魂天规则处理
	Konten         = 7
	maxPointKonten = 2000
)

var (
	ranks = []string{"初心", "雀士", "雀杰", "雀豪", "雀圣", "魂天"}

	minorNumerals = map[int]string{1: "一", 2: "二", 3: "三"}

	maxPoints = []int{
		20, 80, 200,
		600, 800, 1000,
		1200, 1400, 2000,
		2800, 3200, 3600,
		4000, 6000, 9000,
	}
)

// Level 一个段位 由等级id与当前分数构成
type Level struct {
	ID    int
	Score int
}

func NewLevel(id, score int) Level {
	return Level{ID: id, Score: score}
}

// Decompose 拆出(cohort 主序号 次序号)
func (l Level) Decompose() (cohort, major, minor int) {
	real := l.ID % 10000
	return l.ID / 10000, real / 100, real % 100
}

// ComposeID 由(cohort 主序号 次序号)还原等级id
func ComposeID(cohort, major, minor int) int {
	return cohort*10000 + major*100 + minor
}

// LevelID Decompose的逆运算 恒等于原id
func (l Level) LevelID() int {
	cohort, major, minor := l.Decompose()
	return ComposeID(cohort, major, minor)
}

func (l Level) major() int { _, major, _ := l.Decompose(); return major }
func (l Level) minor() int { _, _, minor := l.Decompose(); return minor }

// IsKonten 是否按魂天(顶级段位)规则处理 含其前一级
func (l Level) IsKonten() bool {
	return l.major() >= Konten-1
}

// Equivalent 段位等价比较
// 两个达到魂天线的段位视为同级 不再比较次序号
func (l Level) Equivalent(other Level) bool {
	if l.IsKonten() && other.IsKonten() {
		if l.major() == Konten-1 || other.major() == Konten-1 {
			return true
		}
		return l.major() == other.major() && l.minor() == other.minor()
	}
	return l.major() == other.major() && l.minor() == other.minor()
}

// Tag 段位名 如 雀豪二 / 魂天
func (l Level) Tag() string {
	major := l.major()
	idx := major - 1
	if l.IsKonten() {
		idx = Konten - 2
	}
	if idx < 0 || idx >= len(ranks) {
		return fmt.Sprintf("未知段位(%d)", l.ID)
	}
	label := ranks[idx]
	if major == Konten-1 {
		return label
	}
	if numeral, ok := minorNumerals[l.minor()]; ok {
		return label + numeral
	}
	return label + strconv.Itoa(l.minor())
}

// MaxPoint 当前段位升段分 0表示无上限
func (l Level) MaxPoint() int {
	if l.IsKonten() {
		if l.minor() == 20 {
			return 0
		}
		return maxPointKonten
	}
	idx := (l.major()-1)*3 + l.minor() - 1
	if idx < 0 || idx >= len(maxPoints) {
		return 0
	}
	return maxPoints[idx]
}

// StartingPoint 升入当前段位时的起始分
func (l Level) StartingPoint() int {
	if l.major() == 1 {
		return 0
	}
	return l.MaxPoint() / 2
}

// AdjustedScore 版本调整后的分数 魂天前一级按(score/100)*10+200换算
func (l Level) AdjustedScore() int {
	if l.major() == Konten-1 {
		return (l.Score/100)*10 + 200
	}
	return l.Score
}

// ScoreDisplay 分数显示 魂天段按1/100带一位小数
func (l Level) ScoreDisplay() string {
	score := l.AdjustedScore()
	if l.IsKonten() {
		return fmt.Sprintf("%.1f", float64(score)/100)
	}
	return strconv.Itoa(score)
}

func (l Level) maxPointDisplay() string {
	max := l.MaxPoint()
	if l.IsKonten() {
		return fmt.Sprintf("%.1f", float64(max)/100)
	}
	return strconv.Itoa(max)
}

// FormatScore 形如 150/600 魂天形如 3.5/20.0 无上限时只显示分数
func (l Level) FormatScore() string {
	if l.MaxPoint() == 0 {
		return l.ScoreDisplay()
	}
	return l.ScoreDisplay() + "/" + l.maxPointDisplay()
}

// FormatWithTag 段位名+分数 用于对局结束后的播报
func (l Level) FormatWithTag(scoreDelta int) string {
	adjusted := l.adjustedLevel(l.Score + scoreDelta)
	shifted := Level{ID: l.ID, Score: l.Score + scoreDelta}
	return adjusted.Tag() + " " + shifted.FormatScore()
}

// versionAdjustedLevel 魂天前一级视作魂天一
func (l Level) versionAdjustedLevel() Level {
	cohort, major, _ := l.Decompose()
	if major != Konten-1 {
		return l
	}
	return Level{ID: ComposeID(cohort, Konten, 1), Score: l.Score}
}

// nextLevel 升一级
func (l Level) nextLevel() Level {
	level := l.versionAdjustedLevel()
	cohort, major, minor := level.Decompose()
	minor++
	if minor > 3 && !level.IsKonten() {
		major++
		minor = 1
	}
	if major == Konten-1 {
		major = Konten
	}
	return Level{ID: ComposeID(cohort, major, minor)}
}

// previousLevel 降一级 最低段位返回自身
func (l Level) previousLevel() Level {
	if l.major() == 1 && l.minor() == 1 {
		return l
	}
	level := l.versionAdjustedLevel()
	cohort, major, minor := level.Decompose()
	minor--
	if minor < 1 {
		major--
		minor = 3
	}
	if major == Konten-1 {
		major = Konten - 2
	}
	return Level{ID: ComposeID(cohort, major, minor)}
}

// adjustedLevel 按新分数推算升降段后的段位
func (l Level) adjustedLevel(score int) Level {
	if l.major() == Konten-1 {
		score = (score/100)*10 + 200
	}
	level := l.versionAdjustedLevel()
	max := level.MaxPoint()

	switch {
	case max > 0 && score >= max:
		level = level.nextLevel()
	case score < 0:
		_, major, minor := level.Decompose()
		if max == 0 || major == 1 || (major == 2 && minor == 1) {
			break
		}
		level = level.previousLevel()
	}
	return level
}
