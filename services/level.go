package services

// MaxLevel is the terminal level. XP keeps accruing past it.
const MaxLevel = 10

const (
	earlyLevelXP = 200 // per level, levels 1-5
	lateLevelXP  = 500 // per level, levels 6-10
	lateLevelMin = 6
	lateLevelXP0 = (lateLevelMin - 1) * earlyLevelXP // threshold of level 6
)

// LevelThreshold returns the total XP at which level is reached.
func LevelThreshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	if level < lateLevelMin {
		return int64(level-1) * earlyLevelXP
	}
	return lateLevelXP0 + int64(level-lateLevelMin)*lateLevelXP
}

// LevelFromXP is the level curve. Negative input counts as zero.
func LevelFromXP(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	level := 1
	for level < MaxLevel && xp >= LevelThreshold(level+1) {
		level++
	}
	return level
}

// XPToNextLevel returns the XP still missing for the next level, 0 at MaxLevel.
func XPToNextLevel(xp int64) int64 {
	if xp < 0 {
		xp = 0
	}
	level := LevelFromXP(xp)
	if level >= MaxLevel {
		return 0
	}
	return LevelThreshold(level+1) - xp
}
