package irc

import (
	"fmt"
	"strings"
	"text/template"
)

// Numeric reply codes from RFC 1459 §6. The bridge only ever sends a handful
// of these, but the catalog carries the full repertoire so any known code can
// be encoded.
const (
	RplTraceLink        = 200
	RplTraceConnecting  = 201
	RplTraceHandshake   = 202
	RplTraceUnknown     = 203
	RplTraceOperator    = 204
	RplTraceUser        = 205
	RplTraceServer      = 206
	RplTraceNewType     = 208
	RplStatsLinkInfo    = 211
	RplStatsCommands    = 212
	RplStatsCLine       = 213
	RplStatsNLine       = 214
	RplStatsILine       = 215
	RplStatsKLine       = 216
	RplStatsYLine       = 218
	RplEndOfStats       = 219
	RplUmodeIs          = 221
	RplStatsLLine       = 241
	RplStatsUptime      = 242
	RplStatsOLine       = 243
	RplStatsHLine       = 244
	RplLuserClient      = 251
	RplLuserOp          = 252
	RplLuserUnknown     = 253
	RplLuserChannels    = 254
	RplLuserMe          = 255
	RplAdminMe          = 256
	RplAdminLoc1        = 257
	RplAdminLoc2        = 258
	RplAdminEmail       = 259
	RplTraceLog         = 261
	RplAway             = 301
	RplUserhost         = 302
	RplIson             = 303
	RplUnaway           = 305
	RplNowAway          = 306
	RplWhoisUser        = 311
	RplWhoisServer      = 312
	RplWhoisOperator    = 313
	RplWhoWasUser       = 314
	RplEndOfWho         = 315
	RplWhoisIdle        = 317
	RplEndOfWhois       = 318
	RplWhoisChannels    = 319
	RplListStart        = 321
	RplList             = 322
	RplListEnd          = 323
	RplChannelModeIs    = 324
	RplNoTopic          = 331
	RplTopic            = 332
	RplInviting         = 341
	RplSummoning        = 342
	RplVersion          = 351
	RplWhoReply         = 352
	RplNamReply         = 353
	RplLinks            = 364
	RplEndOfLinks       = 365
	RplEndOfNames       = 366
	RplBanList          = 367
	RplEndOfBanList     = 368
	RplEndOfWhoWas      = 369
	RplInfo             = 371
	RplMotd             = 372
	RplEndOfInfo        = 374
	RplMotdStart        = 375
	RplEndOfMotd        = 376
	RplYoureOper        = 381
	RplRehashing        = 382
	RplTime             = 391
	RplUsersStart       = 392
	RplUsers            = 393
	RplEndOfUsers       = 394
	RplNoUsers          = 395
	ErrNoSuchNick       = 401
	ErrNoSuchServer     = 402
	ErrNoSuchChannel    = 403
	ErrCannotSendToChan = 404
	ErrTooManyChannels  = 405
	ErrWasNoSuchNick    = 406
	ErrTooManyTargets   = 407
	ErrNoOrigin         = 409
	ErrNoRecipient      = 411
	ErrNoTextToSend     = 412
	ErrNoTopLevel       = 413
	ErrWildTopLevel     = 414
	ErrUnknownCommand   = 421
	ErrNoMotd           = 422
	ErrNoAdminInfo      = 423
	ErrFileError        = 424
	ErrNoNicknameGiven  = 431
	ErrErroneusNickname = 432
	ErrNicknameInUse    = 433
	ErrNickCollision    = 436
	ErrUserNotInChannel = 441
	ErrNotOnChannel     = 442
	ErrUserOnChannel    = 443
	ErrNoLogin          = 444
	ErrSummonDisabled   = 445
	ErrUsersDisabled    = 446
	ErrNotRegistered    = 451
	ErrNeedMoreParams   = 461
	ErrAlreadyRegistred = 462
	ErrNoPermForHost    = 463
	ErrPasswdMismatch   = 464
	ErrYoureBannedCreep = 465
	ErrKeySet           = 467
	ErrChannelIsFull    = 471
	ErrUnknownMode      = 472
	ErrInviteOnlyChan   = 473
	ErrBannedFromChan   = 474
	ErrBadChannelKey    = 475
	ErrNoPrivileges     = 481
	ErrChanOPrivsNeeded = 482
	ErrCantKillServer   = 483
	ErrNoOperHost       = 491
	ErrUModeUnknownFlag = 501
	ErrUsersDontMatch   = 502
)

// replyTemplates maps numeric code to the parameterized reply text. Loaded
// once at process start; the table itself is never mutated afterwards.
var replyTemplates = map[int]string{
	RplTraceLink:        "Link {{.version}} {{.destination}} {{.next}}",
	RplTraceConnecting:  "Try. {{.class}} {{.server}}",
	RplTraceHandshake:   "H.S. {{.class}} {{.server}}",
	RplTraceUnknown:     "???? {{.class}} {{.ip}}",
	RplTraceOperator:    "Oper {{.class}} {{.nick}}",
	RplTraceUser:        "User {{.class}} {{.nick}}",
	RplTraceServer:      "Serv {{.class}} {{.s}}S {{.c}}C {{.server}} {{.hostmask}}",
	RplTraceNewType:     "{{.type}} 0 {{.name}}",
	RplStatsLinkInfo:    "{{.name}} {{.sendq}} {{.sentMessages}} {{.sentBytes}} {{.receivedMessages}} {{.receivedBytes}} {{.uptime}}",
	RplStatsCommands:    "{{.command}} {{.count}}",
	RplStatsCLine:       "C {{.host}} * {{.name}} {{.port}} {{.class}}",
	RplStatsNLine:       "N {{.host}} * {{.name}} {{.port}} {{.class}}",
	RplStatsILine:       "I {{.host}} * {{.host}} {{.port}} {{.class}}",
	RplStatsKLine:       "K {{.host}} * {{.user}} {{.port}} {{.class}}",
	RplStatsYLine:       "Y {{.class}} {{.pingFrequency}} {{.connectFrequency}} {{.maxSendq}}",
	RplEndOfStats:       "{{.letter}} :End of /STATS report",
	RplUmodeIs:          "{{.mode}}",
	RplStatsLLine:       "L {{.hostmask}} * {{.server}} {{.maxdepth}}",
	RplStatsUptime:      ":Server Up {{.days}} days {{.time}}",
	RplStatsOLine:       "O {{.hostmask}} * {{.name}}",
	RplStatsHLine:       "H {{.hostmask}} * {{.server}}",
	RplLuserClient:      ":There are {{.userCount}} users and {{.invisibleCount}} invisible on {{.serverCount}} servers",
	RplLuserOp:          "{{.count}} :operator(s) online",
	RplLuserUnknown:     "{{.count}} :unknown connection(s)",
	RplLuserChannels:    "{{.count}} :channels formed",
	RplLuserMe:          ":I have {{.clientCount}} clients and {{.serverCount}} servers",
	RplAdminMe:          "{{.server}} :Administrative info",
	RplAdminLoc1:        ":{{.location}}",
	RplAdminLoc2:        ":{{.location}}",
	RplAdminEmail:       ":{{.email}}",
	RplTraceLog:         "File {{.log}} {{.debugLevel}}",
	RplAway:             "{{.nick}} :{{.message}}",
	RplUserhost:         ":{{.replies}}",
	RplIson:             ":{{.nicks}}",
	RplUnaway:           ":You are no longer marked as being away",
	RplNowAway:          ":You have been marked as being away",
	RplWhoisUser:        "{{.nick}} {{.user}} {{.host}} * :{{.realname}}",
	RplWhoisServer:      "{{.nick}} {{.server}} :{{.serverinfo}}",
	RplWhoisOperator:    "{{.nick}} :is an IRC operator",
	RplWhoWasUser:       "{{.nick}} {{.user}} {{.host}} * :{{.realname}}",
	RplEndOfWho:         "{{.name}} :End of /WHO list",
	RplWhoisIdle:        "{{.nick}} {{.idle}} :seconds idle",
	RplEndOfWhois:       "{{.nick}} :End of /WHOIS list",
	RplWhoisChannels:    "{{.nick}} :{{.channel}}",
	RplListStart:        "Channel :Users  Name",
	RplList:             "{{.channel}} {{.count}} :",
	RplListEnd:          ":End of /LIST",
	RplChannelModeIs:    "{{.channel}} {{.mode}} {{.params}}",
	RplNoTopic:          "{{.channel}} :No topic is set",
	RplTopic:            "{{.channel}} :{{.topic}}",
	RplInviting:         "{{.channel}} {{.nick}}",
	RplSummoning:        "{{.user}} :Summoning user to IRC",
	RplVersion:          "{{.version}} {{.server}} :{{.comments}}",
	RplWhoReply:         "{{.channel}} {{.user}} {{.host}} {{.server}} {{.nick}} {{.mode}} :{{.hopcount}} {{.realname}}",
	RplNamReply:         "@ {{.channel}} :{{.nicks}}",
	RplLinks:            "{{.hostmask}} {{.server}} :{{.hopcount}} {{.serverinfo}}",
	RplEndOfLinks:       "{{.hostmask}} :End of /LINKS list",
	RplEndOfNames:       "{{.channel}} :End of /NAMES list",
	RplBanList:          "{{.channel}} {{.banid}}",
	RplEndOfBanList:     "{{.channel}} :End of channel ban list",
	RplEndOfWhoWas:      "{{.nick}} :End of WHOWAS",
	RplInfo:             ":{{.info}}",
	RplMotd:             ":- {{.motd}}",
	RplEndOfInfo:        ":End of /INFO list",
	RplMotdStart:        ":- {{.server}} Message of the day - ",
	RplEndOfMotd:        ":End of /MOTD command",
	RplYoureOper:        ":You are now an IRC operator",
	RplRehashing:        " :Rehashing",
	RplTime:             "{{.server}} :{{.time}}",
	RplUsersStart:       ":UserID   Terminal  Host",
	RplUsers:            ":{{.userid}} {{.terminal}} {{.host}}",
	RplEndOfUsers:       ":End of users",
	RplNoUsers:          ":Nobody logged in",
	ErrNoSuchNick:       "{{.nick}} :No such nick/channel",
	ErrNoSuchServer:     "{{.server}} :No such server",
	ErrNoSuchChannel:    "{{.channel}} :No such channel",
	ErrCannotSendToChan: "{{.channel}} :Cannot send to channel",
	ErrTooManyChannels:  "{{.channel}} :You have joined too many channels",
	ErrWasNoSuchNick:    "{{.nick}} :There was no such nickname",
	ErrTooManyTargets:   "{{.target}} :Duplicate recipients. No message delivered",
	ErrNoOrigin:         ":No origin specified",
	ErrNoRecipient:      ":No recipient given ({{.command}})",
	ErrNoTextToSend:     ":No text to send",
	ErrNoTopLevel:       "{{.hostmask}} :No toplevel domain specified",
	ErrWildTopLevel:     "{{.hostmask}} :Wildcard in toplevel domain",
	ErrUnknownCommand:   "{{.command}} :Unknown command",
	ErrNoMotd:           ":MOTD File is missing",
	ErrNoAdminInfo:      "{{.server}} :No administrative info available",
	ErrFileError:        ":File error doing {{.fileop}} on {{.file}}",
	ErrNoNicknameGiven:  ":No nickname given",
	ErrErroneusNickname: "{{.nick}} :Erroneus nickname",
	ErrNicknameInUse:    "{{.nick}} :Nickname is already in use",
	ErrNickCollision:    "{{.nick}} :Nickname collision KILL",
	ErrUserNotInChannel: "{{.nick}} {{.channel}} :They aren't on that channel",
	ErrNotOnChannel:     "{{.channel}} :You're not on that channel",
	ErrUserOnChannel:    "{{.user}} {{.channel}} :is already on channel",
	ErrNoLogin:          "{{.user}} :User not logged in",
	ErrSummonDisabled:   ":SUMMON has been disabled",
	ErrUsersDisabled:    ":USERS has been disabled",
	ErrNotRegistered:    ":You have not registered",
	ErrNeedMoreParams:   "{{.command}} :Not enough parameters",
	ErrAlreadyRegistred: ":You may not reregister",
	ErrNoPermForHost:    ":Your host isn't among the privileged",
	ErrPasswdMismatch:   ":Password incorrect",
	ErrYoureBannedCreep: ":You are banned from this server",
	ErrKeySet:           "{{.channel}} :Channel key already set",
	ErrChannelIsFull:    "{{.channel}} :Cannot join channel (+l)",
	ErrUnknownMode:      "{{.char}} :is unknown mode char to me",
	ErrInviteOnlyChan:   "{{.channel}} :Cannot join channel (+i)",
	ErrBannedFromChan:   "{{.channel}} :Cannot join channel (+b)",
	ErrBadChannelKey:    "{{.channel}} :Cannot join channel (+k)",
	ErrNoPrivileges:     ":Permission Denied- You're not an IRC operator",
	ErrChanOPrivsNeeded: "{{.channel}} :You're not channel operator",
	ErrCantKillServer:   ":You cant kill a server!",
	ErrNoOperHost:       ":No O-lines for your host",
	ErrUModeUnknownFlag: ":Unknown MODE flag",
	ErrUsersDontMatch:   ":Cant change mode for other users",
}

// compiled templates, built once at startup. Rendering a template against a
// context missing a referenced key must fail rather than emit blank text,
// hence missingkey=error.
var compiledReplies = func() map[int]*template.Template {
	out := make(map[int]*template.Template, len(replyTemplates))
	for code, text := range replyTemplates {
		out[code] = template.Must(
			template.New(fmt.Sprintf("%03d", code)).
				Option("missingkey=error").
				Parse(text))
	}
	return out
}()

// RenderReply renders the reply text for a numeric code. Unknown codes and
// missing context keys are errors.
func RenderReply(code int, ctx map[string]string) (string, error) {
	tmpl, ok := compiledReplies[code]
	if !ok {
		return "", fmt.Errorf("unknown reply code %d", code)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return "", fmt.Errorf("render reply %03d: %w", code, err)
	}
	return sb.String(), nil
}
