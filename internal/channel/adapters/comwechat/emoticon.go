package comwechat

import "regexp"

var emoticonPattern = regexp.MustCompile(`\[[\p{L}\p{N}_|！! ]+\]`)

// emoticonPairs maps WeChat's bracketed emoticon tags to Unicode emoji.
var emoticonPairs = [][2]string{
	{"[微笑]", "😃"},
	{"[Smile]", "😃"},
	{"[撇嘴]", "😖"},
	{"[Grimace]", "😖"},
	{"[色]", "😍"},
	{"[Drool]", "😍"},
	{"[发呆]", "😳"},
	{"[Scowl]", "😳"},
	{"[得意]", "😎"},
	{"[CoolGuy]", "😎"},
	{"[流泪]", "😭"},
	{"[Sob]", "😭"},
	{"[害羞]", "☺️"},
	{"[Shy]", "☺️"},
	{"[闭嘴]", "🤐"},
	{"[Silent]", "🤐"},
	{"[睡]", "😴"},
	{"[Sleep]", "😴"},
	{"[大哭]", "😣"},
	{"[Cry]", "😣"},
	{"[尴尬]", "😰"},
	{"[Awkward]", "😰"},
	{"[发怒]", "😡"},
	{"[Angry]", "😡"},
	{"[调皮]", "😝"},
	{"[Tongue]", "😝"},
	{"[呲牙]", "😁"},
	{"[Grin]", "😁"},
	{"[惊讶]", "😱"},
	{"[Surprise]", "😱"},
	{"[难过]", "🙁"},
	{"[Frown]", "🙁"},
	{"[抓狂]", "😫"},
	{"[Scream]", "😫"},
	{"[吐]", "🤢"},
	{"[Puke]", "🤢"},
	{"[偷笑]", "🤭"},
	{"[Chuckle]", "🤭"},
	{"[愉快]", "☺"},
	{"[Joyful]", "☺"},
	{"[白眼]", "🙄"},
	{"[Slight]", "🙄"},
	{"[傲慢]", "😕"},
	{"[Smug]", "😕"},
	{"[困]", "😪"},
	{"[Drowsy]", "😪"},
	{"[惊恐]", "😨"},
	{"[Panic]", "😨"},
	{"[憨笑]", "😬"},
	{"[Laugh]", "😬"},
	{"[悠闲]", "😌"},
	{"[Commando]", "😌"},
	{"[咒骂]", "😤"},
	{"[Scold]", "😤"},
	{"[疑问]", "❓"},
	{"[Shocked]", "❓"},
	{"[嘘]", "🤫"},
	{"[Shhh]", "🤫"},
	{"[晕]", "😵"},
	{"[Dizzy]", "😵"},
	{"[衰]", "😩"},
	{"[Toasted]", "😩"},
	{"[骷髅]", "💀"},
	{"[Skull]", "💀"},
	{"[敲打]", "🔨"},
	{"[Hammer]", "🔨"},
	{"[再见]", "👋"},
	{"[Wave]", "👋"},
	{"[擦汗]", "😥"},
	{"[Speechless]", "😥"},
	{"[抠鼻]", "🤔"},
	{"[NosePick]", "🤔"},
	{"[鼓掌]", "👏"},
	{"[Clap]", "👏"},
	{"[坏笑]", "😏"},
	{"[Trick]", "😏"},
	{"[右哼哼]", "😾"},
	{"[Bah！R]", "😾"},
	{"[鄙视]", "😒"},
	{"[委屈]", "😞"},
	{"[Shrunken]", "😞"},
	{"[快哭了]", "😢"},
	{"[TearingUp]", "😢"},
	{"[阴险]", "😈"},
	{"[Sly]", "😈"},
	{"[亲亲]", "😘"},
	{"[Kiss]", "😘"},
	{"[可怜]", "🥺"},
	{"[Whimper]", "🥺"},
	{"[笑脸]", "😄"},
	{"[Happy]", "😄"},
	{"[生病]", "😷"},
	{"[Sick]", "😷"},
	{"[脸红]", "😳"},
	{"[Flushed]", "😳"},
	{"[破涕为笑]", "😂"},
	{"[Lol]", "😂"},
	{"[恐惧]", "😱"},
	{"[Terror]", "😱"},
	{"[失望]", "😞"},
	{"[LetDown]", "😞"},
	{"[无语]", "😒"},
	{"[Duh]", "😒"},
	{"[嘿哈]", "😄"},
	{"[Hey]", "😄"},
	{"[捂脸]", "🤦"},
	{"[Facepalm]", "🤦"},
	{"[奸笑]", "😏"},
	{"[Smirk]", "😏"},
	{"[机智]", "🤓"},
	{"[Smart]", "🤓"},
	{"[皱眉]", "😟"},
	{"[Concerned]", "😟"},
	{"[耶]", "✌️"},
	{"[Yeah!]", "✌️"},
	{"[吃瓜]", "🍉"},
	{"[Onlooker]", "🍉"},
	{"[加油]", "💪"},
	{"[GoForIt]", "💪"},
	{"[汗]", "😓"},
	{"[Sweats]", "😓"},
	{"[天啊]", "😱"},
	{"[OMG]", "😱"},
	{"[Emm]", "🤔"},
	{"[社会社会]", "👌"},
	{"[Respect]", "👌"},
	{"[旺柴]", "🐶"},
	{"[Doge]", "🐶"},
	{"[好的]", "👌"},
	{"[NoProb]", "👌"},
	{"[打脸]", "🤕"},
	{"[MyBad]", "🤕"},
	{"[哇]", "🤩"},
	{"[Wow]", "🤩"},
	{"[翻白眼]", "🙄"},
	{"[Boring]", "🙄"},
	{"[666]", "👍"},
	{"[让我看看]", "👀"},
	{"[LetMeSee]", "👀"},
	{"[叹气]", "😮‍💨"},
	{"[Sigh]", "😮‍💨"},
	{"[苦涩]", "🥲"},
	{"[Hurt]", "🥲"},
	{"[裂开]", "💔"},
	{"[Broken]", "💔"},
	{"[嘴唇]", "💋"},
	{"[Lips]", "💋"},
	{"[爱心]", "❤️"},
	{"[Heart]", "❤️"},
	{"[心碎]", "💔"},
	{"[BrokenHeart]", "💔"},
	{"[拥抱]", "🤗"},
	{"[Hug]", "🤗"},
	{"[强]", "👍"},
	{"[ThumbsUp]", "👍"},
	{"[弱]", "👎"},
	{"[ThumbsDown]", "👎"},
	{"[握手]", "🤝"},
	{"[Shake]", "🤝"},
	{"[胜利]", "✌️"},
	{"[Peace]", "✌️"},
	{"[抱拳]", "🙏"},
	{"[Fight]", "🙏"},
	{"[勾引]", "👈"},
	{"[Beckon]", "👈"},
	{"[拳头]", "👊"},
	{"[Fist]", "👊"},
	{"[OK]", "👌"},
	{"[合十]", "🙏"},
	{"[Worship]", "🙏"},
	{"[啤酒]", "🍺"},
	{"[Beer]", "🍺"},
	{"[咖啡]", "☕"},
	{"[Coffee]", "☕"},
	{"[蛋糕]", "🎂"},
	{"[Cake]", "🎂"},
	{"[玫瑰]", "🌹"},
	{"[Rose]", "🌹"},
	{"[凋谢]", "🥀"},
	{"[Wilt]", "🥀"},
	{"[菜刀]", "🔪"},
	{"[Cleaver]", "🔪"},
	{"[炸弹]", "💣"},
	{"[Bomb]", "💣"},
	{"[便便]", "💩"},
	{"[Poop]", "💩"},
	{"[月亮]", "🌙"},
	{"[Moon]", "🌙"},
	{"[太阳]", "☀️"},
	{"[Sun]", "☀️"},
	{"[庆祝]", "🎉"},
	{"[Party]", "🎉"},
	{"[礼物]", "🎁"},
	{"[Gift]", "🎁"},
	{"[红包]", "🧧"},
	{"[Packet]", "🧧"},
	{"[發]", "🀅"},
	{"[Rich]", "🀅"},
	{"[福]", "🧧"},
	{"[Blessing]", "🧧"},
	{"[烟花]", "🎆"},
	{"[Fireworks]", "🎆"},
	{"[爆竹]", "🧨"},
	{"[Firecracker]", "🧨"},
	{"[猪头]", "🐷"},
	{"[Pig]", "🐷"},
	{"[跳跳]", "💃"},
	{"[Waddle]", "💃"},
	{"[发抖]", "😰"},
	{"[Tremble]", "😰"},
	{"[转圈]", "💫"},
	{"[Twirl]", "💫"},
}

var emoticons = func() map[string]string {
	m := make(map[string]string, len(emoticonPairs))
	for _, p := range emoticonPairs {
		m[p[0]] = p[1]
	}
	return m
}()

// replaceEmoticons substitutes known emoticon tags. Unknown tags are kept as is.
func replaceEmoticons(text string) string {
	if text == "" {
		return text
	}
	return emoticonPattern.ReplaceAllStringFunc(text, func(tag string) string {
		if emoji, ok := emoticons[tag]; ok {
			return emoji
		}
		return tag
	})
}
