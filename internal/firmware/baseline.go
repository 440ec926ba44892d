package firmware

import "github.com/ocforge/ocforge/internal/conftree"

// BootArgsGUID is the NVRAM namespace holding boot-args and
// csr-active-config.
const BootArgsGUID = "7C436110-AB2A-4BBB-A880-FE41995C9F82"

// AppleGUID is the NVRAM namespace for picker appearance variables.
const AppleGUID = "4D1EDE05-38C7-4A6A-9CC6-4BCCA8B38C14"

// defaultBootArgs seeds the boot argument set. Verbose boot with kept
// symbols makes first boots debuggable; operators can trim later.
var defaultBootArgs = []string{"-v", "keepsyms=1", "debug=0x100"}

// newBaseline builds the document every generation starts from:
// conservative quirks for modern desktop boards, picker enabled, secure
// defaults. Stages specialize it; nothing here depends on the hardware
// profile.
func newBaseline() *conftree.Document {
	doc := conftree.NewDocument()

	acpiQuirks := conftree.NewDict()
	acpiQuirks.Set("FadtEnableReset", true)
	acpiQuirks.Set("NormalizeHeaders", false)
	acpiQuirks.Set("RebaseRegions", false)
	acpiQuirks.Set("ResetHwSig", false)
	acpiQuirks.Set("ResetLogoStatus", true)
	acpiQuirks.Set("SyncTableIds", false)
	doc.ACPI.Set("Add", conftree.NewArray())
	doc.ACPI.Set("Delete", conftree.NewArray())
	doc.ACPI.Set("Patch", conftree.NewArray())
	doc.ACPI.Set("Quirks", acpiQuirks)

	booterQuirks := conftree.NewDict()
	booterQuirks.Set("AllowRelocationBlock", false)
	booterQuirks.Set("AvoidRuntimeDefrag", true)
	booterQuirks.Set("DevirtualiseMmio", true)
	booterQuirks.Set("DisableSingleUser", false)
	booterQuirks.Set("DisableVariableWrite", false)
	booterQuirks.Set("DiscardHibernateMap", false)
	booterQuirks.Set("EnableSafeModeSlide", true)
	booterQuirks.Set("EnableWriteUnprotector", false)
	booterQuirks.Set("ForceBooterSignature", false)
	booterQuirks.Set("ForceExitBootServices", false)
	booterQuirks.Set("ProtectMemoryRegions", false)
	booterQuirks.Set("ProtectSecureBoot", false)
	booterQuirks.Set("ProtectUefiServices", false)
	booterQuirks.Set("ProvideCustomSlide", true)
	booterQuirks.Set("ProvideMaxSlide", int64(0))
	booterQuirks.Set("RebuildAppleMemoryMap", true)
	booterQuirks.Set("ResizeAppleGpuBars", int64(0))
	booterQuirks.Set("SetupVirtualMap", true)
	booterQuirks.Set("SignalAppleOS", false)
	booterQuirks.Set("SyncRuntimePermissions", true)
	doc.Booter.Set("MmioWhitelist", conftree.NewArray())
	doc.Booter.Set("Patch", conftree.NewArray())
	doc.Booter.Set("Quirks", booterQuirks)

	doc.DeviceProperties.Set("Add", conftree.NewDict())
	doc.DeviceProperties.Set("Delete", conftree.NewDict())

	kernelEmulate := conftree.NewDict()
	kernelEmulate.Set("Cpuid1Data", []byte{})
	kernelEmulate.Set("Cpuid1Mask", []byte{})
	kernelEmulate.Set("DummyPowerManagement", false)
	kernelEmulate.Set("MaxKernel", "")
	kernelEmulate.Set("MinKernel", "")
	kernelQuirks := conftree.NewDict()
	kernelQuirks.Set("AppleCpuPmCfgLock", false)
	kernelQuirks.Set("AppleXcpmCfgLock", true)
	kernelQuirks.Set("AppleXcpmExtraMsrs", false)
	kernelQuirks.Set("AppleXcpmForceBoost", false)
	kernelQuirks.Set("CustomSMBIOSGuid", true)
	kernelQuirks.Set("DisableIoMapper", true)
	kernelQuirks.Set("DisableLinkeditJettison", true)
	kernelQuirks.Set("DisableRtcChecksum", true)
	kernelQuirks.Set("ExtendBTFeatureFlags", false)
	kernelQuirks.Set("ExternalDiskIcons", false)
	kernelQuirks.Set("ForceSecureBootScheme", false)
	kernelQuirks.Set("IncreasePciBarSize", false)
	kernelQuirks.Set("LapicKernelPanic", false)
	kernelQuirks.Set("LegacyCommpage", false)
	kernelQuirks.Set("PanicNoKextDump", true)
	kernelQuirks.Set("PowerTimeoutKernelPanic", true)
	kernelQuirks.Set("ProvideCurrentCpuInfo", false)
	kernelQuirks.Set("SetApfsTrimTimeout", int64(-1))
	kernelQuirks.Set("ThirdPartyDrives", false)
	kernelQuirks.Set("XhciPortLimit", true)
	kernelScheme := conftree.NewDict()
	kernelScheme.Set("CustomKernel", false)
	kernelScheme.Set("FuzzyMatch", false)
	kernelScheme.Set("KernelArch", "Auto")
	kernelScheme.Set("KernelCache", "Auto")
	doc.Kernel.Set("Add", conftree.NewArray())
	doc.Kernel.Set("Block", conftree.NewArray())
	doc.Kernel.Set("Emulate", kernelEmulate)
	doc.Kernel.Set("Force", conftree.NewArray())
	doc.Kernel.Set("Patch", conftree.NewArray())
	doc.Kernel.Set("Quirks", kernelQuirks)
	doc.Kernel.Set("Scheme", kernelScheme)

	miscBoot := conftree.NewDict()
	miscBoot.Set("ConsoleAttributes", int64(0))
	miscBoot.Set("HibernateMode", "None")
	miscBoot.Set("HideAuxiliary", false)
	miscBoot.Set("PickerAttributes", int64(145))
	miscBoot.Set("PickerAudioAssist", false)
	miscBoot.Set("PickerMode", "External")
	miscBoot.Set("PickerVariant", "Auto")
	miscBoot.Set("PollAppleHotKeys", true)
	miscBoot.Set("ShowPicker", true)
	miscBoot.Set("TakeoffDelay", int64(0))
	miscBoot.Set("Timeout", int64(5))
	miscDebug := conftree.NewDict()
	miscDebug.Set("AppleDebug", false)
	miscDebug.Set("ApplePanic", false)
	miscDebug.Set("DisableWatchDog", true)
	miscDebug.Set("DisplayLevel", int64(2147483650))
	miscDebug.Set("SerialInit", false)
	miscDebug.Set("SysReport", false)
	miscDebug.Set("Target", int64(3))
	miscSecurity := conftree.NewDict()
	miscSecurity.Set("AllowSetDefault", true)
	miscSecurity.Set("AuthRestart", false)
	miscSecurity.Set("BlacklistAppleUpdate", true)
	miscSecurity.Set("DmgLoading", "Signed")
	miscSecurity.Set("EnablePassword", false)
	miscSecurity.Set("ExposeSensitiveData", int64(15))
	miscSecurity.Set("HaltLevel", int64(2147483648))
	miscSecurity.Set("ScanPolicy", int64(0))
	miscSecurity.Set("SecureBootModel", "Default")
	miscSecurity.Set("Vault", "Secure")
	doc.Misc.Set("BlessOverride", conftree.NewArray())
	doc.Misc.Set("Boot", miscBoot)
	doc.Misc.Set("Debug", miscDebug)
	doc.Misc.Set("Security", miscSecurity)

	appleVars := conftree.NewDict()
	appleVars.Set("DefaultBackgroundColor", []byte{0x00, 0x00, 0x00, 0x00})
	appleVars.Set("UIScale", []byte{0x01})
	bootVars := conftree.NewDict()
	bootVars.Set("boot-args", "")
	bootVars.Set("csr-active-config", []byte{0x00, 0x00, 0x00, 0x00})
	bootVars.Set("prev-lang:kbd", "en-US:0")
	nvramAdd := conftree.NewDict()
	nvramAdd.Set(AppleGUID, appleVars)
	nvramAdd.Set(BootArgsGUID, bootVars)
	appleDeletes := conftree.NewArray()
	appleDeletes.Append("DefaultBackgroundColor")
	appleDeletes.Append("UIScale")
	bootDeletes := conftree.NewArray()
	bootDeletes.Append("boot-args")
	nvramDelete := conftree.NewDict()
	nvramDelete.Set(AppleGUID, appleDeletes)
	nvramDelete.Set(BootArgsGUID, bootDeletes)
	doc.NVRAM.Set("Add", nvramAdd)
	doc.NVRAM.Set("Delete", nvramDelete)
	doc.NVRAM.Set("LegacyEnable", false)
	doc.NVRAM.Set("LegacyOverwrite", false)
	doc.NVRAM.Set("WriteFlash", true)

	generic := conftree.NewDict()
	generic.Set("AdviseFeatures", true)
	generic.Set("MaxBIOSVersion", false)
	generic.Set("MLB", "")
	generic.Set("ProcessorType", int64(0))
	generic.Set("ROM", []byte{})
	generic.Set("SpoofVendor", true)
	generic.Set("SystemMemoryStatus", "Auto")
	generic.Set("SystemProductName", "iMacPro1,1")
	generic.Set("SystemSerialNumber", "")
	generic.Set("SystemUUID", "")
	doc.PlatformInfo.Set("Automatic", true)
	doc.PlatformInfo.Set("CustomMemory", false)
	doc.PlatformInfo.Set("Generic", generic)
	doc.PlatformInfo.Set("UpdateDataHub", true)
	doc.PlatformInfo.Set("UpdateNVRAM", true)
	doc.PlatformInfo.Set("UpdateSMBIOS", true)
	doc.PlatformInfo.Set("UpdateSMBIOSMode", "Create")

	apfs := conftree.NewDict()
	apfs.Set("EnableJumpstart", true)
	apfs.Set("GlobalConnect", false)
	apfs.Set("HideVerbose", true)
	apfs.Set("JumpstartHotPlug", false)
	apfs.Set("MinDate", int64(0))
	apfs.Set("MinVersion", int64(0))
	audio := conftree.NewDict()
	audio.Set("AudioCodec", int64(0))
	audio.Set("AudioDevice", "PciRoot(0x0)/Pci(0x1F,0x3)")
	audio.Set("AudioOutMask", int64(1))
	audio.Set("AudioSupport", false)
	audio.Set("MinimumVolume", int64(20))
	audio.Set("PlayChime", "Auto")
	audio.Set("VolumeAmplifier", int64(0))
	drivers := conftree.NewArray()
	for _, d := range []struct{ path, comment string }{
		{"HfsPlus.efi", "HFS+ driver"},
		{"OpenRuntime.efi", "OpenRuntime driver"},
		{"OpenCanopy.efi", "OpenCanopy driver"},
	} {
		entry := conftree.NewDict()
		entry.Set("Arguments", "")
		entry.Set("Comment", d.comment)
		entry.Set("Enabled", true)
		entry.Set("LoadEarly", false)
		entry.Set("Path", d.path)
		drivers.Append(entry)
	}
	input := conftree.NewDict()
	input.Set("KeyFiltering", false)
	input.Set("KeyForgetThreshold", int64(5))
	input.Set("KeySupport", true)
	input.Set("KeySupportMode", "Auto")
	input.Set("KeySwap", false)
	input.Set("PointerSupport", false)
	input.Set("PointerSupportMode", "ASUS")
	input.Set("TimerResolution", int64(50000))
	output := conftree.NewDict()
	output.Set("ClearScreenOnModeSwitch", false)
	output.Set("ConsoleMode", "")
	output.Set("DirectGopRendering", false)
	output.Set("ForceResolution", false)
	output.Set("GopPassThrough", false)
	output.Set("IgnoreTextInGraphics", false)
	output.Set("ProvideConsoleGop", true)
	output.Set("ReconnectOnResChange", false)
	output.Set("ReplaceTabWithSpace", false)
	output.Set("Resolution", "Max")
	output.Set("SanitiseClearScreen", false)
	output.Set("TextRenderer", "BuiltinGraphics")
	output.Set("UgaPassThrough", false)
	protocols := conftree.NewDict()
	for _, name := range []string{
		"AppleAudio", "AppleBootPolicy", "AppleDebugLog", "AppleEvent",
		"AppleFramebufferInfo", "AppleImageConversion", "AppleImg4Verification",
		"AppleKeyMap", "AppleRtcRam", "AppleSecureBoot", "AppleSmcIo",
		"AppleUserInterfaceTheme", "DataHub", "DeviceProperties",
		"FirmwareVolume", "HashServices", "OSInfo", "UnicodeCollation",
	} {
		protocols.Set(name, false)
	}
	uefiQuirks := conftree.NewDict()
	uefiQuirks.Set("ActivateHpetSupport", false)
	uefiQuirks.Set("DisableSecurityPolicy", false)
	uefiQuirks.Set("EnableVectorAcceleration", true)
	uefiQuirks.Set("ExitBootServicesDelay", int64(0))
	uefiQuirks.Set("ForceOcWriteFlash", false)
	uefiQuirks.Set("ForgeUefiSupport", false)
	uefiQuirks.Set("IgnoreInvalidFlexRatio", false)
	uefiQuirks.Set("ReleaseUsbOwnership", true)
	uefiQuirks.Set("ReloadOptionRoms", false)
	uefiQuirks.Set("RequestBootVarRouting", true)
	uefiQuirks.Set("TscSyncTimeout", int64(0))
	uefiQuirks.Set("UnblockFsConnect", false)
	doc.UEFI.Set("APFS", apfs)
	doc.UEFI.Set("Audio", audio)
	doc.UEFI.Set("ConnectDrivers", true)
	doc.UEFI.Set("Drivers", drivers)
	doc.UEFI.Set("Input", input)
	doc.UEFI.Set("Output", output)
	doc.UEFI.Set("ProtocolOverrides", protocols)
	doc.UEFI.Set("Quirks", uefiQuirks)
	doc.UEFI.Set("ReservedMemory", conftree.NewArray())

	return doc
}
